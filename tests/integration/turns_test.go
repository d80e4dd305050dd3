//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowball-voice/snowball/internal/quota"
)

func TestChatTurnEndToEnd(t *testing.T) {
	env := SetupTestEnv(t)
	env.Model.Set("The moon is a natural satellite of Earth.", 20, 9)

	resp := DoRequest(t, env, "POST", "/webhook", ChatBody("e2e-sess-1", "e2e-user-1", "what is the moon"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := ParseResponse(t, resp)
	response := result["response"].(map[string]any)
	speech := response["outputSpeech"].(map[string]any)
	assert.Equal(t, "The moon is a natural satellite of Earth.", speech["text"])
	assert.Equal(t, false, response["shouldEndSession"])

	t.Run("usage lands in postgres", func(t *testing.T) {
		rec, found, err := env.QuotaStore.Get(context.Background(), "e2e-user-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 29, rec.TokensUsed)
		assert.Equal(t, "America/Los_Angeles", rec.Timezone)
	})

	t.Run("session lands in redis", func(t *testing.T) {
		val, err := env.RedisClient.Get(context.Background(), "session:e2e-sess-1").Result()
		require.NoError(t, err)
		assert.Contains(t, val, "what is the moon")
		assert.Contains(t, val, "natural satellite")
	})

	t.Run("quota endpoint reflects the turn", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/quota/e2e-user-1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		result := ParseResponse(t, resp)
		data := result["data"].(map[string]any)
		assert.Equal(t, true, data["allowed"])
		assert.Equal(t, float64(29), data["tokens_used"])
		assert.Equal(t, float64(9971), data["tokens_remaining"])
	})
}

func TestFollowUpTurnCarriesContext(t *testing.T) {
	env := SetupTestEnv(t)

	env.Model.Set("Paris.", 12, 2)
	resp := DoRequest(t, env, "POST", "/webhook", ChatBody("e2e-sess-2", "e2e-user-2", "capital of France?"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	env.Model.Set("About two million people.", 30, 5)
	resp = DoRequest(t, env, "POST", "/webhook", ChatBody("e2e-sess-2", "e2e-user-2", "how many people live there?"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := ParseResponse(t, resp)
	speech := result["response"].(map[string]any)["outputSpeech"].(map[string]any)
	assert.Equal(t, "About two million people.", speech["text"])

	// Both turns accumulated in the same quota day.
	rec, found, err := env.QuotaStore.Get(context.Background(), "e2e-user-2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 49, rec.TokensUsed)
}

func TestQuotaBlocksOverLimitUser(t *testing.T) {
	env := SetupTestEnv(t)

	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	require.NoError(t, env.QuotaStore.Put(context.Background(), &quota.Record{
		UserID:      "e2e-user-3",
		TokensUsed:  10000,
		ResetDate:   time.Now().In(loc).Format("2006-01-02"),
		Timezone:    "America/Los_Angeles",
		LastUpdated: time.Now().UTC(),
	}))

	resp := DoRequest(t, env, "POST", "/webhook", ChatBody("e2e-sess-3", "e2e-user-3", "hello"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := ParseResponse(t, resp)
	response := result["response"].(map[string]any)
	speech := response["outputSpeech"].(map[string]any)
	assert.Contains(t, speech["text"], "daily limit")
	assert.Equal(t, true, response["shouldEndSession"])
}

func TestModelFailureDoesNotChargeTokens(t *testing.T) {
	env := SetupTestEnv(t)
	env.Model.SetFail(true)
	t.Cleanup(func() { env.Model.SetFail(false) })

	resp := DoRequest(t, env, "POST", "/webhook", ChatBody("e2e-sess-4", "e2e-user-4", "hello"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := ParseResponse(t, resp)
	speech := result["response"].(map[string]any)["outputSpeech"].(map[string]any)
	assert.Contains(t, speech["text"], "couldn't get a response")

	_, found, err := env.QuotaStore.Get(context.Background(), "e2e-user-4")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHealthEndpoints(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "GET", "/health/live", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "GET", "/health/ready", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "not configured", data["nats"])
}
