package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server       ServerConfig
	DB           DBConfig
	Redis        RedisConfig
	OpenAI       OpenAIConfig
	Quota        QuotaConfig
	Conversation ConversationConfig
	NATS         NATSConfig
	Log          LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32

	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// SessionTTL bounds how long an idle voice session keeps its history.
	SessionTTL time.Duration
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// MaxRetries counts re-attempts after the first call, so 2 means up
	// to 3 attempts total.
	MaxRetries       int
	RetryDelay       time.Duration
	MaxResponseChars int
}

type QuotaConfig struct {
	DailyTokenLimit int
	DefaultTimezone string
}

type ConversationConfig struct {
	SummarizeThreshold int
	RecentKeep         int
	SystemPrompt       string
}

type NATSConfig struct {
	// URL is optional; empty disables audit event publishing.
	URL string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               k.String("server.host"),
			Port:               k.Int("server.port"),
			CORSAllowedOrigins: splitCSV(k.String("cors.allowed.origins")),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),

			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		OpenAI: OpenAIConfig{
			APIKey:           k.String("openai.api.key"),
			BaseURL:          k.String("openai.base.url"),
			Model:            k.String("openai.model"),
			MaxRetries:       k.Int("llm.max.retries"),
			MaxResponseChars: k.Int("llm.max.response.chars"),
		},
		Quota: QuotaConfig{
			DailyTokenLimit: k.Int("quota.daily.token.limit"),
			DefaultTimezone: k.String("quota.default.timezone"),
		},
		Conversation: ConversationConfig{
			SummarizeThreshold: k.Int("conversation.summarize.threshold"),
			RecentKeep:         k.Int("conversation.recent.keep"),
			SystemPrompt:       k.String("conversation.system.prompt"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "snowball"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "snowball"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-5-mini"
	}
	if cfg.OpenAI.MaxRetries == 0 {
		cfg.OpenAI.MaxRetries = 2
	}
	if cfg.OpenAI.MaxResponseChars == 0 {
		cfg.OpenAI.MaxResponseChars = 6000
	}
	if cfg.Quota.DailyTokenLimit == 0 {
		cfg.Quota.DailyTokenLimit = 10000
	}
	if cfg.Quota.DefaultTimezone == "" {
		cfg.Quota.DefaultTimezone = "America/Los_Angeles"
	}
	if cfg.Conversation.SummarizeThreshold == 0 {
		cfg.Conversation.SummarizeThreshold = 8
	}
	if cfg.Conversation.RecentKeep == 0 {
		cfg.Conversation.RecentKeep = 4
	}
	if cfg.Conversation.SystemPrompt == "" {
		cfg.Conversation.SystemPrompt = "You are Snowball, a friendly voice assistant. " +
			"Answer briefly and conversationally, in plain spoken English without markup or lists."
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	timeoutStr := k.String("openai.timeout")
	if timeoutStr == "" {
		timeoutStr = "60s"
	}
	cfg.OpenAI.Timeout, err = time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing openai timeout: %w", err)
	}

	retryDelayStr := k.String("llm.retry.delay")
	if retryDelayStr == "" {
		retryDelayStr = "500ms"
	}
	cfg.OpenAI.RetryDelay, err = time.ParseDuration(retryDelayStr)
	if err != nil {
		return nil, fmt.Errorf("parsing llm retry delay: %w", err)
	}

	sessionTTLStr := k.String("redis.session.ttl")
	if sessionTTLStr == "" {
		sessionTTLStr = "30m"
	}
	cfg.Redis.SessionTTL, err = time.ParseDuration(sessionTTLStr)
	if err != nil {
		return nil, fmt.Errorf("parsing redis session ttl: %w", err)
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
