package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/snowball-voice/snowball/internal/config"
)

// Manager decides admission against the daily token limit and applies usage
// increments with lazy day rollover. Rollover happens at read time by
// comparing the stored date to "today" in the record's own timezone, so
// correctness holds even when a user has been inactive for days and there is
// no scheduler to reset counters.
//
// CommitUsage is a read-then-write against the shared record with no
// transactional guard: two turns for the same user racing each other can
// lose an increment (last write wins). The quota is an abuse deterrent, not
// a billing ledger.
type Manager struct {
	store Store
	cfg   config.QuotaConfig
	// now is swappable for tests.
	now func() time.Time
}

func NewManager(store Store, cfg config.QuotaConfig) *Manager {
	return &Manager{store: store, cfg: cfg, now: time.Now}
}

// today returns the current calendar date in the given IANA zone. An
// unknown zone falls back to the configured default rather than failing the
// turn over a bad stored value.
func (m *Manager) today(tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("quota: unknown timezone, using default", "timezone", tz, "default", m.cfg.DefaultTimezone)
		loc, err = time.LoadLocation(m.cfg.DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
	}
	return m.now().In(loc).Format("2006-01-02")
}

// CheckAdmission reports whether the user may start a turn. A missing record
// or one whose reset date is not today (in the record's zone) counts as zero
// usage and is always allowed.
func (m *Manager) CheckAdmission(ctx context.Context, userID string) (Admission, error) {
	rec, found, err := m.store.Get(ctx, userID)
	if err != nil {
		return Admission{}, fmt.Errorf("quota admission check: %w", err)
	}

	tz := m.cfg.DefaultTimezone
	if found && rec.Timezone != "" {
		tz = rec.Timezone
	}

	if !found || rec.ResetDate != m.today(tz) {
		return Admission{
			Allowed:         true,
			TokensUsed:      0,
			TokensRemaining: m.cfg.DailyTokenLimit,
		}, nil
	}

	return Admission{
		Allowed:         rec.TokensUsed < m.cfg.DailyTokenLimit,
		TokensUsed:      rec.TokensUsed,
		TokensRemaining: max(0, m.cfg.DailyTokenLimit-rec.TokensUsed),
	}, nil
}

// CommitUsage re-reads the record, carries prior usage over only when the
// stored date is still today, and writes back the new total stamped with
// today's date. LimitReached on the result never retroactively blocks the
// turn being committed, only future admissions.
func (m *Manager) CommitUsage(ctx context.Context, userID string, tokensToAdd int) (Usage, error) {
	rec, found, err := m.store.Get(ctx, userID)
	if err != nil {
		return Usage{}, fmt.Errorf("quota usage commit: %w", err)
	}

	tz := m.cfg.DefaultTimezone
	if found && rec.Timezone != "" {
		tz = rec.Timezone
	}
	today := m.today(tz)

	current := 0
	if found && rec.ResetDate == today {
		current = rec.TokensUsed
	}

	newTotal := current + tokensToAdd
	if err := m.store.Put(ctx, &Record{
		UserID:      userID,
		TokensUsed:  newTotal,
		ResetDate:   today,
		Timezone:    tz,
		LastUpdated: m.now().UTC(),
	}); err != nil {
		return Usage{}, fmt.Errorf("quota usage commit: %w", err)
	}

	return Usage{
		TokensUsed:      newTotal,
		TokensRemaining: max(0, m.cfg.DailyTokenLimit-newTotal),
		LimitReached:    newTotal >= m.cfg.DailyTokenLimit,
	}, nil
}

// SetTimezone upserts the stored timezone while preserving the current
// usage and reset date, so a returning user changing locale keeps their
// same-day quota state.
func (m *Manager) SetTimezone(ctx context.Context, userID, tz string) error {
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", tz, err)
	}

	rec, found, err := m.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("quota timezone update: %w", err)
	}

	tokensUsed := 0
	resetDate := m.today(tz)
	if found {
		tokensUsed = rec.TokensUsed
		resetDate = rec.ResetDate
	}

	if err := m.store.Put(ctx, &Record{
		UserID:      userID,
		TokensUsed:  tokensUsed,
		ResetDate:   resetDate,
		Timezone:    tz,
		LastUpdated: m.now().UTC(),
	}); err != nil {
		return fmt.Errorf("quota timezone update: %w", err)
	}
	return nil
}
