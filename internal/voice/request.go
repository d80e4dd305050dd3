package voice

// Request and response envelopes for the voice platform webhook. The shapes
// follow the platform's skill request format: a session block identifying
// the user and session, and a request block carrying the type and intent.

// Platform request types.
const (
	TypeLaunch       = "LaunchRequest"
	TypeIntent       = "IntentRequest"
	TypeSessionEnded = "SessionEndedRequest"
)

// Intent names the skill responds to.
const (
	IntentChat        = "ChatIntent"
	IntentSetTimezone = "SetTimezoneIntent"
	IntentHelp        = "AMAZON.HelpIntent"
	IntentCancel      = "AMAZON.CancelIntent"
	IntentStop        = "AMAZON.StopIntent"
	IntentFallback    = "AMAZON.FallbackIntent"
)

type RequestEnvelope struct {
	Version string      `json:"version"`
	Session SessionInfo `json:"session" validate:"required"`
	Request RequestInfo `json:"request" validate:"required"`
}

type SessionInfo struct {
	New       bool     `json:"new"`
	SessionID string   `json:"sessionId" validate:"required"`
	User      UserInfo `json:"user" validate:"required"`
}

type UserInfo struct {
	UserID string `json:"userId" validate:"required"`
}

type RequestInfo struct {
	Type      string  `json:"type" validate:"required"`
	RequestID string  `json:"requestId"`
	Reason    string  `json:"reason,omitempty"`
	Intent    *Intent `json:"intent,omitempty"`
}

type Intent struct {
	Name  string          `json:"name"`
	Slots map[string]Slot `json:"slots,omitempty"`
}

type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SlotValue returns the value of the named slot, or "" when absent.
func (r *RequestEnvelope) SlotValue(name string) string {
	if r.Request.Intent == nil {
		return ""
	}
	return r.Request.Intent.Slots[name].Value
}

type ResponseEnvelope struct {
	Version  string       `json:"version"`
	Response ResponseBody `json:"response"`
}

type ResponseBody struct {
	OutputSpeech     *OutputSpeech `json:"outputSpeech,omitempty"`
	Reprompt         *Reprompt     `json:"reprompt,omitempty"`
	ShouldEndSession bool          `json:"shouldEndSession"`
}

type OutputSpeech struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Reprompt struct {
	OutputSpeech OutputSpeech `json:"outputSpeech"`
}

func plainText(text string) *OutputSpeech {
	return &OutputSpeech{Type: "PlainText", Text: text}
}

// speakWithReprompt builds a response that keeps the session open and
// reprompts if the user stays silent.
func speakWithReprompt(text, reprompt string) ResponseEnvelope {
	return ResponseEnvelope{
		Version: "1.0",
		Response: ResponseBody{
			OutputSpeech: plainText(text),
			Reprompt:     &Reprompt{OutputSpeech: *plainText(reprompt)},
		},
	}
}

// endSession builds a response that speaks and ends the session.
func endSession(text string) ResponseEnvelope {
	return ResponseEnvelope{
		Version: "1.0",
		Response: ResponseBody{
			OutputSpeech:     plainText(text),
			ShouldEndSession: true,
		},
	}
}

// emptyResponse acknowledges a request that takes no speech, such as
// SessionEndedRequest.
func emptyResponse() ResponseEnvelope {
	return ResponseEnvelope{Version: "1.0"}
}
