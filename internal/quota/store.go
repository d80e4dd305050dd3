package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the durable single-row-per-user record contract. Put overwrites
// the whole record; there is no partial update and no delete.
type Store interface {
	Get(ctx context.Context, userID string) (*Record, bool, error)
	Put(ctx context.Context, rec *Record) error
}

// PostgresStore implements Store on the quota_usage table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get returns the user's record, or found=false if none exists.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*Record, bool, error) {
	var rec Record
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, tokens_used, reset_date, timezone, last_updated
		 FROM quota_usage WHERE user_id = $1`, userID,
	).Scan(&rec.UserID, &rec.TokensUsed, &rec.ResetDate, &rec.Timezone, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetching quota record: %w", err)
	}
	return &rec, true, nil
}

// Put upserts the full record, last write wins on every column.
func (s *PostgresStore) Put(ctx context.Context, rec *Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quota_usage (user_id, tokens_used, reset_date, timezone, last_updated)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET tokens_used = EXCLUDED.tokens_used,
		     reset_date = EXCLUDED.reset_date,
		     timezone = EXCLUDED.timezone,
		     last_updated = EXCLUDED.last_updated`,
		rec.UserID, rec.TokensUsed, rec.ResetDate, rec.Timezone, rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("writing quota record: %w", err)
	}
	return nil
}
