package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowball-voice/snowball/internal/config"
	"github.com/snowball-voice/snowball/internal/conversation"
	"github.com/snowball-voice/snowball/internal/llm"
)

// scriptedTransport pops one result per Complete call.
type scriptedTransport struct {
	results []result
	calls   int
	lastMsg []conversation.Turn
}

type result struct {
	comp llm.Completion
	err  error
}

func (s *scriptedTransport) Complete(_ context.Context, messages []conversation.Turn) (llm.Completion, error) {
	s.lastMsg = messages
	if s.calls >= len(s.results) {
		return llm.Completion{}, errors.New("script exhausted")
	}
	r := s.results[s.calls]
	s.calls++
	return r.comp, r.err
}

func newTestOrchestrator(tr llm.Transport) *Orchestrator {
	o := New(tr, config.OpenAIConfig{
		MaxRetries:       2,
		RetryDelay:       500 * time.Millisecond,
		MaxResponseChars: 6000,
	})
	o.sleep = func(context.Context, time.Duration) error { return nil }
	return o
}

func TestConverse_FirstAttemptSucceeds(t *testing.T) {
	tr := &scriptedTransport{results: []result{
		{comp: llm.Completion{Text: "Hello there.", PromptTokens: 12, CompletionTokens: 4}},
	}}
	o := newTestOrchestrator(tr)

	reply, err := o.Converse(context.Background(), []conversation.Turn{{Role: conversation.RoleUser, Content: "hi"}}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", reply.Text)
	assert.Equal(t, 16, reply.TokensUsed)
	assert.Equal(t, 1, tr.calls)
}

func TestConverse_RecoversWithinRetryBudget(t *testing.T) {
	tr := &scriptedTransport{results: []result{
		{err: errors.New("connection reset")},
		{err: errors.New("gateway timeout")},
		{comp: llm.Completion{Text: "Third time lucky.", PromptTokens: 10, CompletionTokens: 5}},
	}}
	o := newTestOrchestrator(tr)

	reply, err := o.Converse(context.Background(), nil, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Third time lucky.", reply.Text)
	assert.Equal(t, 15, reply.TokensUsed)
	assert.Equal(t, 3, tr.calls)
}

func TestConverse_AllAttemptsFail(t *testing.T) {
	tr := &scriptedTransport{results: []result{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{err: errors.New("boom")},
	}}
	o := newTestOrchestrator(tr)

	_, err := o.Converse(context.Background(), nil, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportFailure)
	assert.Equal(t, 3, tr.calls)
}

func TestConverse_DelaysOnlyBetweenFailedAttempts(t *testing.T) {
	tr := &scriptedTransport{results: []result{
		{err: errors.New("boom")},
		{comp: llm.Completion{Text: "ok", PromptTokens: 1, CompletionTokens: 1}},
	}}
	o := newTestOrchestrator(tr)

	var slept []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := o.Converse(context.Background(), nil, "user-1")
	require.NoError(t, err)
	require.Len(t, slept, 1)
	assert.Equal(t, 500*time.Millisecond, slept[0])
}

func TestConverse_EmptyAnswerFallbackKeepsCharges(t *testing.T) {
	tr := &scriptedTransport{results: []result{
		{comp: llm.Completion{Text: "", PromptTokens: 10, CompletionTokens: 0}},
		{comp: llm.Completion{Text: "   ", PromptTokens: 10, CompletionTokens: 1}},
		{comp: llm.Completion{Text: "\n", PromptTokens: 10, CompletionTokens: 1}},
	}}
	o := newTestOrchestrator(tr)

	var slept int
	o.sleep = func(context.Context, time.Duration) error { slept++; return nil }

	reply, err := o.Converse(context.Background(), nil, "user-1")
	require.NoError(t, err, "empty answers must not surface as errors")
	assert.Equal(t, FallbackAnswer, reply.Text)
	// 32 tokens were billed by the provider even though every answer was
	// discarded; they still count.
	assert.Equal(t, 32, reply.TokensUsed)
	assert.Equal(t, 3, tr.calls)
	assert.Zero(t, slept, "empty-answer retries re-attempt immediately")
}

func TestConverse_EmptyThenContentAccumulatesTokens(t *testing.T) {
	tr := &scriptedTransport{results: []result{
		{comp: llm.Completion{Text: "", PromptTokens: 8, CompletionTokens: 0}},
		{comp: llm.Completion{Text: "An answer.", PromptTokens: 9, CompletionTokens: 3}},
	}}
	o := newTestOrchestrator(tr)

	reply, err := o.Converse(context.Background(), nil, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "An answer.", reply.Text)
	assert.Equal(t, 20, reply.TokensUsed)
}

func TestConverse_TruncatesLongAnswers(t *testing.T) {
	long := strings.Repeat("a", 6001)
	tr := &scriptedTransport{results: []result{
		{comp: llm.Completion{Text: long, PromptTokens: 1, CompletionTokens: 1}},
	}}
	o := newTestOrchestrator(tr)

	reply, err := o.Converse(context.Background(), nil, "user-1")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 6000)+" Would you like me to continue?", reply.Text)
}

func TestConverse_ExactCeilingNotTruncated(t *testing.T) {
	exact := strings.Repeat("b", 6000)
	tr := &scriptedTransport{results: []result{
		{comp: llm.Completion{Text: exact, PromptTokens: 1, CompletionTokens: 1}},
	}}
	o := newTestOrchestrator(tr)

	reply, err := o.Converse(context.Background(), nil, "user-1")
	require.NoError(t, err)
	assert.Equal(t, exact, reply.Text)
}

func TestConverse_CancelledDuringRetryDelay(t *testing.T) {
	tr := &scriptedTransport{results: []result{
		{err: errors.New("boom")},
		{comp: llm.Completion{Text: "never reached"}},
	}}
	o := newTestOrchestrator(tr)
	o.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Converse(ctx, nil, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportFailure)
	assert.Equal(t, 1, tr.calls)
}

func TestSummarize_Success(t *testing.T) {
	tr := &scriptedTransport{results: []result{
		{comp: llm.Completion{Text: "They talked about the moon and Paris.", PromptTokens: 30, CompletionTokens: 12}},
	}}
	o := newTestOrchestrator(tr)

	summary, tokens, err := o.Summarize(context.Background(), []conversation.Turn{
		{Role: conversation.RoleUser, Content: "what is the moon"},
		{Role: conversation.RoleAssistant, Content: "a natural satellite"},
	}, "They greeted each other.")
	require.NoError(t, err)
	assert.Equal(t, "They talked about the moon and Paris.", summary)
	assert.Equal(t, 42, tokens)

	// The prompt folds in the previous summary and the transcript.
	require.Len(t, tr.lastMsg, 2)
	assert.Contains(t, tr.lastMsg[1].Content, "They greeted each other.")
	assert.Contains(t, tr.lastMsg[1].Content, "User: what is the moon")
	assert.Contains(t, tr.lastMsg[1].Content, "Assistant: a natural satellite")
}

func TestSummarize_FailureReturnsExistingSummary(t *testing.T) {
	tr := &scriptedTransport{results: []result{
		{err: errors.New("boom")},
	}}
	o := newTestOrchestrator(tr)

	summary, tokens, err := o.Summarize(context.Background(), nil, "previous summary")
	require.Error(t, err)
	assert.Equal(t, "previous summary", summary)
	assert.Zero(t, tokens)
	assert.Equal(t, 1, tr.calls, "summarization is a single best-effort call")
}

func TestSummarize_EmptyResultIsFailure(t *testing.T) {
	tr := &scriptedTransport{results: []result{
		{comp: llm.Completion{Text: "  ", PromptTokens: 5, CompletionTokens: 1}},
	}}
	o := newTestOrchestrator(tr)

	summary, _, err := o.Summarize(context.Background(), nil, "previous summary")
	require.Error(t, err)
	assert.Equal(t, "previous summary", summary)
}
