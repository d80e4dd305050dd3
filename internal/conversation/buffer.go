package conversation

import (
	"context"
	"log/slog"

	"github.com/snowball-voice/snowball/internal/config"
)

// Summarizer compresses evicted history into a short running account,
// folding in the previous summary so compression is cumulative.
type Summarizer interface {
	Summarize(ctx context.Context, older []Turn, existingSummary string) (summary string, tokensUsed int, err error)
}

// Buffer assembles the model-facing message list and applies the
// trim-or-summarize policy that keeps history bounded after every turn.
type Buffer struct {
	summarizer Summarizer
	cfg        config.ConversationConfig
}

func NewBuffer(summarizer Summarizer, cfg config.ConversationConfig) *Buffer {
	return &Buffer{summarizer: summarizer, cfg: cfg}
}

// PrepareOutgoing builds [system prompt, optional summary, ...history, new
// user turn] from a copy of the session's history. The session itself is
// untouched: history is only mutated by CommitTurn after a successful
// model response.
func (b *Buffer) PrepareOutgoing(sess *Session, userTurn Turn) []Turn {
	messages := make([]Turn, 0, len(sess.History)+3)
	messages = append(messages, Turn{Role: RoleSystem, Content: b.cfg.SystemPrompt})
	if sess.Summary != "" {
		messages = append(messages, Turn{
			Role:    RoleSystem,
			Content: "Summary of the conversation so far: " + sess.Summary,
		})
	}
	messages = append(messages, sess.History...)
	messages = append(messages, userTurn)
	return messages
}

// CommitTurn appends the exchange to history and compresses when history
// grows past the summarize threshold: everything but the most recent turns
// is folded into the running summary and dropped. When summarization fails
// the older turns are dropped anyway, so memory stays bounded at the cost
// of the compressed content; the previous summary is kept.
//
// Returns the tokens consumed by the summarization call, if any, for the
// caller to commit against the user's quota.
func (b *Buffer) CommitTurn(ctx context.Context, sess *Session, userTurn, assistantTurn Turn) int {
	sess.History = append(sess.History, userTurn, assistantTurn)

	if len(sess.History) <= b.cfg.SummarizeThreshold {
		return 0
	}

	split := len(sess.History) - b.cfg.RecentKeep
	older := sess.History[:split]
	recent := sess.History[split:]

	summary, tokensUsed, err := b.summarizer.Summarize(ctx, older, sess.Summary)
	if err != nil {
		slog.Warn("conversation: summarization failed, trimming without compression",
			"error", err, "dropped_turns", len(older))
		sess.History = append([]Turn(nil), recent...)
		return 0
	}

	sess.Summary = summary
	sess.History = append([]Turn(nil), recent...)
	slog.Debug("conversation: history compressed",
		"summarized_turns", len(older), "kept_turns", len(recent), "tokens_used", tokensUsed)
	return tokensUsed
}
