//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/snowball-voice/snowball/internal/api"
	"github.com/snowball-voice/snowball/internal/config"
	"github.com/snowball-voice/snowball/internal/conversation"
	"github.com/snowball-voice/snowball/internal/llm"
	"github.com/snowball-voice/snowball/internal/orchestrator"
	"github.com/snowball-voice/snowball/internal/quota"
	"github.com/snowball-voice/snowball/internal/turn"
	"github.com/snowball-voice/snowball/internal/voice"
)

// ModelStub fakes the chat completions endpoint so turns run end-to-end
// without a real provider.
type ModelStub struct {
	mu sync.Mutex

	NextText         string
	PromptTokens     int
	CompletionTokens int
	Fail             bool
}

func (m *ModelStub) Set(text string, promptTokens, completionTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NextText = text
	m.PromptTokens = promptTokens
	m.CompletionTokens = completionTokens
	m.Fail = false
}

func (m *ModelStub) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = fail
}

func (m *ModelStub) handler(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "stubbed failure"},
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": m.NextText}},
		},
		"usage": map[string]any{
			"prompt_tokens":     m.PromptTokens,
			"completion_tokens": m.CompletionTokens,
			"total_tokens":      m.PromptTokens + m.CompletionTokens,
		},
	})
}

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	Model       *ModelStub
	QuotaStore  *quota.PostgresStore
}

var testEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "snowball_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/snowball_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	// Run migrations
	m, err := migrate.New(
		fmt.Sprintf("file://%s", getMigrationsPath()),
		dsn,
	)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// Stubbed model provider
	model := &ModelStub{NextText: "Stubbed answer.", PromptTokens: 10, CompletionTokens: 5}
	modelServer := httptest.NewServer(http.HandlerFunc(model.handler))
	t.Cleanup(modelServer.Close)

	// Wire the full stack against the containers and the stub
	openaiCfg := config.OpenAIConfig{
		APIKey:           "test-key",
		BaseURL:          modelServer.URL,
		Model:            "gpt-5-mini",
		Timeout:          10 * time.Second,
		MaxRetries:       2,
		RetryDelay:       time.Millisecond,
		MaxResponseChars: 6000,
	}

	quotaStore := quota.NewPostgresStore(pool)
	quotaManager := quota.NewManager(quotaStore, config.QuotaConfig{
		DailyTokenLimit: 10000,
		DefaultTimezone: "America/Los_Angeles",
	})
	quotaHandler := quota.NewHandler(quotaManager)

	transport := llm.NewClient(openaiCfg)
	orch := orchestrator.New(transport, openaiCfg)

	buffer := conversation.NewBuffer(orch, config.ConversationConfig{
		SummarizeThreshold: 8,
		RecentKeep:         4,
		SystemPrompt:       "You are Snowball.",
	})
	sessions := conversation.NewSessionStore(redisClient, 30*time.Minute)

	turns := turn.NewHandler(quotaManager, buffer, orch, nil)
	voiceHandler := voice.NewHandler(turns, sessions, quotaManager, nil)

	router := api.NewRouter(pool, redisClient, nil, api.RouterConfig{}, api.HandlerSet{
		Webhook:        voiceHandler.Webhook,
		GetQuotaStatus: quotaHandler.GetStatus,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		Model:       model,
		QuotaStore:  quotaStore,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}

// ChatBody builds a webhook envelope asking the given question.
func ChatBody(sessionID, userID, query string) map[string]any {
	return map[string]any{
		"version": "1.0",
		"session": map[string]any{
			"sessionId": sessionID,
			"user":      map[string]any{"userId": userID},
		},
		"request": map[string]any{
			"type":      "IntentRequest",
			"requestId": "req-1",
			"intent": map[string]any{
				"name": "ChatIntent",
				"slots": map[string]any{
					"query": map[string]any{"name": "query", "value": query},
				},
			},
		},
	}
}
