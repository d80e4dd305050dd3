package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if c.OpenAI.APIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Default timezone must be a resolvable IANA name
	if _, err := time.LoadLocation(c.Quota.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("QUOTA_DEFAULT_TIMEZONE %q is not a valid IANA zone", c.Quota.DefaultTimezone))
	}

	if c.Quota.DailyTokenLimit < 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_DAILY_TOKEN_LIMIT must be positive, got %d", c.Quota.DailyTokenLimit))
	}

	// The buffer must retain fewer turns than the summarize trigger,
	// otherwise the older/recent split is empty.
	if c.Conversation.RecentKeep >= c.Conversation.SummarizeThreshold {
		errs = append(errs, fmt.Sprintf("CONVERSATION_RECENT_KEEP (%d) must be below CONVERSATION_SUMMARIZE_THRESHOLD (%d)",
			c.Conversation.RecentKeep, c.Conversation.SummarizeThreshold))
	}

	if c.OpenAI.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("LLM_MAX_RETRIES must not be negative, got %d", c.OpenAI.MaxRetries))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
