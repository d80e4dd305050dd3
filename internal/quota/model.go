package quota

import "time"

// Record matches the quota_usage table schema: one row per user, overwritten
// wholesale on every usage update. TokensUsed only counts for the calendar
// day named by ResetDate (in the record's own timezone); a stale ResetDate
// means the user is logically back at zero without the row being rewritten.
type Record struct {
	UserID      string    `json:"user_id"`
	TokensUsed  int       `json:"tokens_used"`
	ResetDate   string    `json:"reset_date"` // YYYY-MM-DD in Timezone
	Timezone    string    `json:"timezone"`   // IANA zone name
	LastUpdated time.Time `json:"last_updated"`
}

// Admission is the result of a pre-turn quota check.
type Admission struct {
	Allowed         bool `json:"allowed"`
	TokensUsed      int  `json:"tokens_used"`
	TokensRemaining int  `json:"tokens_remaining"`
}

// Usage is the result of committing tokens after a model call. LimitReached
// is informational: it never blocks the turn that produced it.
type Usage struct {
	TokensUsed      int  `json:"tokens_used"`
	TokensRemaining int  `json:"tokens_remaining"`
	LimitReached    bool `json:"limit_reached"`
}
