// Package orchestrator builds outgoing model requests, drives the transport
// with a bounded retry budget, and normalizes what comes back before it
// reaches a voice renderer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/snowball-voice/snowball/internal/config"
	"github.com/snowball-voice/snowball/internal/conversation"
	"github.com/snowball-voice/snowball/internal/llm"
	"github.com/snowball-voice/snowball/internal/metrics"
)

// ErrTransportFailure marks a model call that failed on every attempt.
var ErrTransportFailure = errors.New("model transport failed")

// FallbackAnswer replaces an answer that came back empty on every attempt.
const FallbackAnswer = "I'm sorry, I couldn't come up with an answer to that. Could you try asking another way?"

// continuationPrompt is appended when an answer is hard-truncated.
const continuationPrompt = " Would you like me to continue?"

// Reply is a normalized model answer plus the total tokens the exchange
// consumed, for the caller to commit against the user's quota. The
// orchestrator itself never writes quota state.
type Reply struct {
	Text       string
	TokensUsed int
}

type Orchestrator struct {
	transport llm.Transport
	cfg       config.OpenAIConfig
	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(transport llm.Transport, cfg config.OpenAIConfig) *Orchestrator {
	return &Orchestrator{
		transport: transport,
		cfg:       cfg,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Converse sends the assembled message set and returns the model's answer.
// Transport failures are retried after a fixed delay up to the configured
// budget, then surfaced as ErrTransportFailure. Empty answers are retried
// immediately within the same budget, then substituted with FallbackAnswer
// rather than failing the turn. Tokens billed for discarded empty answers
// still count toward TokensUsed.
func (o *Orchestrator) Converse(ctx context.Context, messages []conversation.Turn, userID string) (Reply, error) {
	totalTokens := 0

	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		start := time.Now()
		comp, err := o.transport.Complete(ctx, messages)
		metrics.ModelCallDuration.WithLabelValues("converse").Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.ModelCallsTotal.WithLabelValues("converse", "error").Inc()
			slog.Warn("model call failed", "user_id", userID, "attempt", attempt+1, "error", err)
			if attempt == o.cfg.MaxRetries {
				return Reply{}, fmt.Errorf("%w after %d attempts: %v", ErrTransportFailure, attempt+1, err)
			}
			if serr := o.sleep(ctx, o.cfg.RetryDelay); serr != nil {
				return Reply{}, fmt.Errorf("%w: %v", ErrTransportFailure, serr)
			}
			continue
		}

		metrics.ModelCallsTotal.WithLabelValues("converse", "ok").Inc()
		totalTokens += comp.PromptTokens + comp.CompletionTokens

		text := strings.TrimSpace(comp.Text)
		if text == "" {
			slog.Warn("model returned empty answer", "user_id", userID, "attempt", attempt+1)
			continue
		}

		return Reply{Text: o.truncate(text), TokensUsed: totalTokens}, nil
	}

	// Every attempt succeeded at the transport level but none produced
	// content. The billed tokens are still reported for commit.
	slog.Warn("model answered empty on all attempts, using fallback", "user_id", userID)
	return Reply{Text: FallbackAnswer, TokensUsed: totalTokens}, nil
}

// Summarize asks the model for a 2-3 sentence compressed account of the
// older turns, folding in the existing summary so nothing summarized before
// is lost. One attempt only: a failed summarization returns the existing
// summary unchanged with an error, and the caller degrades to plain
// trimming. It must never abort the turn.
func (o *Orchestrator) Summarize(ctx context.Context, older []conversation.Turn, existingSummary string) (string, int, error) {
	var sb strings.Builder
	if existingSummary != "" {
		sb.WriteString("Earlier summary of this conversation:\n")
		sb.WriteString(existingSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Conversation to fold in:\n")
	for _, t := range older {
		switch t.Role {
		case conversation.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}

	messages := []conversation.Turn{
		{
			Role: conversation.RoleSystem,
			Content: "You condense voice-assistant conversations. Reply with a 2-3 sentence " +
				"summary covering the earlier summary (if any) and the new turns. " +
				"Keep names, preferences, and open questions. Reply with the summary only.",
		},
		{Role: conversation.RoleUser, Content: sb.String()},
	}

	start := time.Now()
	comp, err := o.transport.Complete(ctx, messages)
	metrics.ModelCallDuration.WithLabelValues("summarize").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCallsTotal.WithLabelValues("summarize", "error").Inc()
		return existingSummary, 0, fmt.Errorf("summarizing history: %w", err)
	}
	metrics.ModelCallsTotal.WithLabelValues("summarize", "ok").Inc()

	summary := strings.TrimSpace(comp.Text)
	tokens := comp.PromptTokens + comp.CompletionTokens
	if summary == "" {
		return existingSummary, tokens, errors.New("summarizing history: model returned empty summary")
	}

	metrics.SummarizationsTotal.Inc()
	return summary, tokens, nil
}

// truncate enforces the output-length safety net: answers past the
// configured rune ceiling are cut there and get the continuation prompt,
// instead of reaching a voice renderer with a stricter limit.
func (o *Orchestrator) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= o.cfg.MaxResponseChars {
		return text
	}
	return string(runes[:o.cfg.MaxResponseChars]) + continuationPrompt
}
