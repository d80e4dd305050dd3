package events

import "time"

// Subjects and the stream that carries them.
const (
	StreamAudit = "SNOWBALL_AUDIT"

	SubjectTurnCompleted   = "snowball.audit.turn.completed"
	SubjectQuotaExceeded   = "snowball.audit.quota.exceeded"
	SubjectTimezoneChanged = "snowball.audit.timezone.changed"
)

// TurnCompleted records one answered turn and its quota charge.
type TurnCompleted struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	TokensUsed   int       `json:"tokens_used"`
	TokensTotal  int       `json:"tokens_total"`
	LimitReached bool      `json:"limit_reached"`
	Summarized   bool      `json:"summarized"`
	Timestamp    time.Time `json:"timestamp"`
}

// QuotaExceeded records an admission denial.
type QuotaExceeded struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TokensUsed int       `json:"tokens_used"`
	Timestamp  time.Time `json:"timestamp"`
}

// TimezoneChanged records a user switching their quota timezone.
type TimezoneChanged struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Timezone  string    `json:"timezone"`
	Timestamp time.Time `json:"timestamp"`
}
