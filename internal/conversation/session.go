package conversation

// Turn roles as the model transport expects them.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single message in a conversation. Immutable once created.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the per-voice-session conversational state. The caller owns it
// between turns; the core reads and rewrites it but keeps no copy. History
// is append-only except for head trimming, and Summary holds one compressed
// account of everything ever evicted from History, replaced wholesale each
// time summarization runs.
type Session struct {
	History []Turn `json:"history"`
	Summary string `json:"summary"`
	// RepromptCount tracks consecutive silence reprompts in the voice layer.
	RepromptCount int `json:"reprompt_count"`
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}
