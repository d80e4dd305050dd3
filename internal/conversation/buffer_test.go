package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowball-voice/snowball/internal/config"
)

type fakeSummarizer struct {
	calls   int
	fail    bool
	tokens  int
	lastOld []Turn
}

func (f *fakeSummarizer) Summarize(_ context.Context, older []Turn, existing string) (string, int, error) {
	f.calls++
	f.lastOld = older
	if f.fail {
		return existing, 0, errors.New("model unavailable")
	}
	return fmt.Sprintf("summary-%d", f.calls), f.tokens, nil
}

func testBufferConfig() config.ConversationConfig {
	return config.ConversationConfig{
		SummarizeThreshold: 8,
		RecentKeep:         4,
		SystemPrompt:       "You are Snowball.",
	}
}

func exchange(i int) (Turn, Turn) {
	return Turn{Role: RoleUser, Content: fmt.Sprintf("question %d", i)},
		Turn{Role: RoleAssistant, Content: fmt.Sprintf("answer %d", i)}
}

func TestPrepareOutgoing_EmptySession(t *testing.T) {
	b := NewBuffer(&fakeSummarizer{}, testBufferConfig())
	sess := NewSession()

	msgs := b.PrepareOutgoing(sess, Turn{Role: RoleUser, Content: "hello"})
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "You are Snowball.", msgs[0].Content)
	assert.Equal(t, "hello", msgs[1].Content)

	// The new turn is not recorded until CommitTurn.
	assert.Empty(t, sess.History)
}

func TestPrepareOutgoing_IncludesSummaryAndHistory(t *testing.T) {
	b := NewBuffer(&fakeSummarizer{}, testBufferConfig())
	sess := &Session{
		Summary: "They discussed the moon.",
		History: []Turn{
			{Role: RoleUser, Content: "what is the moon"},
			{Role: RoleAssistant, Content: "a natural satellite"},
		},
	}

	msgs := b.PrepareOutgoing(sess, Turn{Role: RoleUser, Content: "how far is it"})
	require.Len(t, msgs, 5)
	assert.Equal(t, RoleSystem, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "They discussed the moon.")
	assert.Equal(t, "how far is it", msgs[4].Content)
}

func TestPrepareOutgoing_DoesNotMutateSessionHistory(t *testing.T) {
	b := NewBuffer(&fakeSummarizer{}, testBufferConfig())
	sess := &Session{History: []Turn{{Role: RoleUser, Content: "hi"}}}

	_ = b.PrepareOutgoing(sess, Turn{Role: RoleUser, Content: "again"})
	require.Len(t, sess.History, 1)
	assert.Equal(t, "hi", sess.History[0].Content)
}

func TestCommitTurn_BelowThresholdKeepsHistory(t *testing.T) {
	summ := &fakeSummarizer{}
	b := NewBuffer(summ, testBufferConfig())
	sess := NewSession()

	for i := 0; i < 4; i++ {
		u, a := exchange(i)
		tokens := b.CommitTurn(context.Background(), sess, u, a)
		assert.Zero(t, tokens)
	}

	assert.Len(t, sess.History, 8)
	assert.Zero(t, summ.calls)
	assert.Empty(t, sess.Summary)
}

func TestCommitTurn_SummarizesOnceOverFiveExchanges(t *testing.T) {
	summ := &fakeSummarizer{tokens: 42}
	b := NewBuffer(summ, testBufferConfig())
	sess := NewSession()

	var summaryTokens int
	for i := 0; i < 5; i++ {
		u, a := exchange(i)
		summaryTokens += b.CommitTurn(context.Background(), sess, u, a)
	}

	// Fires exactly once, when history first exceeds 8 (at 10 turns).
	assert.Equal(t, 1, summ.calls)
	assert.Equal(t, 42, summaryTokens)
	assert.Len(t, sess.History, 4)
	assert.Equal(t, "summary-1", sess.Summary)

	// The six older turns were the ones summarized; the last four survive
	// verbatim.
	assert.Len(t, summ.lastOld, 6)
	assert.Equal(t, "question 3", sess.History[0].Content)
	assert.Equal(t, "answer 4", sess.History[3].Content)
}

func TestCommitTurn_SummaryReplacedWholesale(t *testing.T) {
	summ := &fakeSummarizer{}
	b := NewBuffer(summ, testBufferConfig())
	sess := NewSession()

	for i := 0; i < 12; i++ {
		u, a := exchange(i)
		b.CommitTurn(context.Background(), sess, u, a)
	}

	assert.Greater(t, summ.calls, 1)
	assert.Equal(t, fmt.Sprintf("summary-%d", summ.calls), sess.Summary)
	assert.LessOrEqual(t, len(sess.History), 8)
}

func TestCommitTurn_SummarizationFailureStaysBounded(t *testing.T) {
	summ := &fakeSummarizer{fail: true}
	b := NewBuffer(summ, testBufferConfig())
	sess := &Session{Summary: "last good summary"}

	for i := 0; i < 20; i++ {
		u, a := exchange(i)
		tokens := b.CommitTurn(context.Background(), sess, u, a)
		assert.Zero(t, tokens)
		assert.LessOrEqual(t, len(sess.History), 8, "history must stay bounded")
	}

	// Trimming without compression keeps the previous summary untouched.
	assert.Equal(t, "last good summary", sess.Summary)
	assert.Len(t, sess.History, 4)
	assert.Equal(t, "answer 19", sess.History[3].Content)
}
