// Package turn sequences one conversational turn: admission check, context
// assembly, model call, usage commit, history commit. It is the single
// point that translates component errors into a user-facing outcome.
package turn

import (
	"context"
	"errors"
	"log/slog"

	"github.com/snowball-voice/snowball/internal/conversation"
	"github.com/snowball-voice/snowball/internal/events"
	"github.com/snowball-voice/snowball/internal/metrics"
	"github.com/snowball-voice/snowball/internal/orchestrator"
	"github.com/snowball-voice/snowball/internal/quota"
)

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeFailed   Outcome = "failed"
)

// Fixed user-facing phrases for non-answer outcomes.
const (
	quotaExceededSpeech    = "You've reached your daily limit of tokens. Please try again tomorrow."
	transportFailureSpeech = "Sorry, I couldn't get a response. Please try again."
)

// Result is everything the voice layer needs to render one turn.
type Result struct {
	SpokenText string
	EndSession bool
	Outcome    Outcome
}

// Handler runs the per-turn flow. The session is mutated in place; the
// caller owns it between turns.
type Handler struct {
	quota  *quota.Manager
	buffer *conversation.Buffer
	orch   *orchestrator.Orchestrator
	audit  *events.Publisher // nil disables audit events
}

func NewHandler(q *quota.Manager, b *conversation.Buffer, o *orchestrator.Orchestrator, audit *events.Publisher) *Handler {
	return &Handler{quota: q, buffer: b, orch: o, audit: audit}
}

// HandleTurn answers one user utterance. A returned error means a durable
// store failure; the caller renders a generic apology and the session is
// left exactly as it was. Quota and transport outcomes are not errors: they
// come back as Blocked or Failed results with their fixed phrases.
//
// Usage is charged for any turn whose model call completed, even when a
// later step fails; it is never rolled back. A turn whose model call failed
// every attempt charges nothing and records nothing in history.
func (h *Handler) HandleTurn(ctx context.Context, userID, utterance string, sess *conversation.Session) (Result, error) {
	adm, err := h.quota.CheckAdmission(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if !adm.Allowed {
		slog.Info("turn blocked by quota", "user_id", userID, "tokens_used", adm.TokensUsed)
		metrics.TurnsTotal.WithLabelValues(string(OutcomeBlocked)).Inc()
		h.audit.QuotaExceeded(ctx, userID, adm.TokensUsed)
		return Result{SpokenText: quotaExceededSpeech, EndSession: true, Outcome: OutcomeBlocked}, nil
	}

	userTurn := conversation.Turn{Role: conversation.RoleUser, Content: utterance}
	messages := h.buffer.PrepareOutgoing(sess, userTurn)

	reply, err := h.orch.Converse(ctx, messages, userID)
	if err != nil {
		if !errors.Is(err, orchestrator.ErrTransportFailure) {
			slog.Error("unexpected model call error", "user_id", userID, "error", err)
		}
		metrics.TurnsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		return Result{SpokenText: transportFailureSpeech, Outcome: OutcomeFailed}, nil
	}

	usage, err := h.quota.CommitUsage(ctx, userID, reply.TokensUsed)
	if err != nil {
		return Result{}, err
	}
	metrics.TokensCommittedTotal.Add(float64(reply.TokensUsed))
	if usage.LimitReached {
		slog.Info("user reached daily token limit", "user_id", userID, "tokens_used", usage.TokensUsed)
	}

	assistantTurn := conversation.Turn{Role: conversation.RoleAssistant, Content: reply.Text}
	summaryTokens := h.buffer.CommitTurn(ctx, sess, userTurn, assistantTurn)
	if summaryTokens > 0 {
		usage, err = h.quota.CommitUsage(ctx, userID, summaryTokens)
		if err != nil {
			return Result{}, err
		}
		metrics.TokensCommittedTotal.Add(float64(summaryTokens))
	}

	metrics.TurnsTotal.WithLabelValues(string(OutcomeAnswered)).Inc()
	h.audit.TurnCompleted(ctx, userID, reply.TokensUsed+summaryTokens, usage.TokensUsed, usage.LimitReached, summaryTokens > 0)

	return Result{SpokenText: reply.Text, Outcome: OutcomeAnswered}, nil
}
