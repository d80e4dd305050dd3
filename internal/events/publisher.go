package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher emits typed audit events. All methods are nil-safe no-ops so
// callers can hold a nil *Publisher when NATS is not configured.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// TurnCompleted emits an audit record for one answered turn.
func (p *Publisher) TurnCompleted(ctx context.Context, userID string, tokensUsed, tokensTotal int, limitReached, summarized bool) {
	if p == nil {
		return
	}
	p.publish(ctx, SubjectTurnCompleted, TurnCompleted{
		ID:           uuid.New().String(),
		UserID:       userID,
		TokensUsed:   tokensUsed,
		TokensTotal:  tokensTotal,
		LimitReached: limitReached,
		Summarized:   summarized,
		Timestamp:    time.Now().UTC(),
	})
}

// QuotaExceeded emits an audit record for a denied admission.
func (p *Publisher) QuotaExceeded(ctx context.Context, userID string, tokensUsed int) {
	if p == nil {
		return
	}
	p.publish(ctx, SubjectQuotaExceeded, QuotaExceeded{
		ID:         uuid.New().String(),
		UserID:     userID,
		TokensUsed: tokensUsed,
		Timestamp:  time.Now().UTC(),
	})
}

// TimezoneChanged emits an audit record for a timezone update.
func (p *Publisher) TimezoneChanged(ctx context.Context, userID, tz string) {
	if p == nil {
		return
	}
	p.publish(ctx, SubjectTimezoneChanged, TimezoneChanged{
		ID:        uuid.New().String(),
		UserID:    userID,
		Timezone:  tz,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, subject string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshaling audit event", "subject", subject, "error", err)
		return
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		slog.Warn("publishing audit event", "subject", subject, "error", err)
	}
}
