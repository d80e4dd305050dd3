package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionStore(client, 30*time.Minute), mr
}

func TestSessionStore_LoadMissingReturnsEmpty(t *testing.T) {
	store, _ := setupMiniredis(t)

	sess, err := store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, sess.History)
	assert.Empty(t, sess.Summary)
}

func TestSessionStore_SaveLoadRoundTrip(t *testing.T) {
	store, _ := setupMiniredis(t)
	ctx := context.Background()

	sess := &Session{
		History: []Turn{
			{Role: RoleUser, Content: "what is the moon"},
			{Role: RoleAssistant, Content: "a natural satellite"},
		},
		Summary:       "Moon talk.",
		RepromptCount: 1,
	}
	require.NoError(t, store.Save(ctx, "sess-1", sess))

	loaded, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess.History, loaded.History)
	assert.Equal(t, "Moon talk.", loaded.Summary)
	assert.Equal(t, 1, loaded.RepromptCount)
}

func TestSessionStore_ExpiresAfterTTL(t *testing.T) {
	store, mr := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sess-1", &Session{Summary: "x"}))

	mr.FastForward(31 * time.Minute)

	loaded, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, loaded.Summary)
}

func TestSessionStore_Delete(t *testing.T) {
	store, _ := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sess-1", &Session{Summary: "x"}))
	require.NoError(t, store.Delete(ctx, "sess-1"))

	loaded, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, loaded.Summary)
}

func TestSessionStore_MalformedBlobStartsOver(t *testing.T) {
	store, mr := setupMiniredis(t)

	mr.Set("session:sess-1", "{not json")

	loaded, err := store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, loaded.History)
}

func TestSessionStore_IsolatedBySessionID(t *testing.T) {
	store, _ := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sess-1", &Session{Summary: "one"}))
	require.NoError(t, store.Save(ctx, "sess-2", &Session{Summary: "two"}))

	s1, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	s2, err := store.Load(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, "one", s1.Summary)
	assert.Equal(t, "two", s2.Summary)
}
