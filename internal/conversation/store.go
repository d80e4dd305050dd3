package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore persists Session state in Redis between webhook calls. The
// voice platform is stateless HTTP, so the session layer reloads the
// session at the start of each request and saves it back after the turn.
// Each session is one JSON document keyed by the platform session ID,
// expiring after the configured idle TTL.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// Load returns the stored session, or a fresh empty one if none exists or
// the stored blob cannot be decoded.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return NewSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// A malformed blob means starting over, not failing the turn.
		return NewSession(), nil
	}
	return &sess, nil
}

// Save overwrites the stored session and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, sessionID string, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving session %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes the session, called when the platform ends it.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKey(sessionID)).Err()
}
