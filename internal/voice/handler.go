// Package voice is the platform-facing webhook: it maps raw skill requests
// to intents, drives the turn handler, and renders plain-text speech. No
// conversation or quota logic lives here.
package voice

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/snowball-voice/snowball/internal/api"
	"github.com/snowball-voice/snowball/internal/conversation"
	"github.com/snowball-voice/snowball/internal/events"
	"github.com/snowball-voice/snowball/internal/quota"
	"github.com/snowball-voice/snowball/internal/turn"
)

// Fixed skill phrases.
const (
	welcomeSpeech        = "Hi, I'm Snowball. What would you like to know?"
	welcomeReprompt      = "Say 'Snowball' followed by your question."
	helpSpeech           = "I'm Snowball, your AI assistant. Just ask me anything! For example, say 'what is the moon' or 'tell me about Paris'."
	goodbyeSpeech        = "Goodbye."
	noQuestionSpeech     = "I didn't hear a question. What would you like to know?"
	askAgainReprompt     = "What would you like to know?"
	askMoreReprompt      = "What else would you like to know?"
	fallbackSpeech       = "I didn't catch that. Try asking something like 'what is the moon' or 'tell me about dinosaurs'."
	stillHereSpeech      = "Let me know if you need anything else."
	errorSpeech          = "Sorry, I had trouble doing that. Please try again."
	timezoneUnknownSpeech = "I don't recognize that timezone. Try a city-based name like 'America/New_York'."
)

// Handler serves the webhook endpoint.
type Handler struct {
	turns    *turn.Handler
	sessions *conversation.SessionStore
	quota    *quota.Manager
	audit    *events.Publisher
	validate *validator.Validate
}

func NewHandler(turns *turn.Handler, sessions *conversation.SessionStore, q *quota.Manager, audit *events.Publisher) *Handler {
	return &Handler{
		turns:    turns,
		sessions: sessions,
		quota:    q,
		audit:    audit,
		validate: validator.New(),
	}
}

// Webhook handles one platform request and always answers with a response
// envelope; only a malformed envelope gets an HTTP error.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req RequestEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	slog.Debug("webhook request",
		"type", req.Request.Type,
		"session_id", req.Session.SessionID,
		"request_id", req.Request.RequestID,
	)

	var resp ResponseEnvelope
	switch req.Request.Type {
	case TypeLaunch:
		resp = speakWithReprompt(welcomeSpeech, welcomeReprompt)
	case TypeSessionEnded:
		resp = h.handleSessionEnded(r, &req)
	case TypeIntent:
		resp = h.handleIntent(r, &req)
	default:
		slog.Warn("unknown request type", "type", req.Request.Type)
		resp = speakWithReprompt(fallbackSpeech, askAgainReprompt)
	}

	api.JSONRaw(w, http.StatusOK, resp)
}

func (h *Handler) handleIntent(r *http.Request, req *RequestEnvelope) ResponseEnvelope {
	if req.Request.Intent == nil {
		return speakWithReprompt(fallbackSpeech, askAgainReprompt)
	}

	switch req.Request.Intent.Name {
	case IntentChat:
		return h.handleChat(r, req)
	case IntentSetTimezone:
		return h.handleSetTimezone(r, req)
	case IntentHelp:
		return speakWithReprompt(helpSpeech, askAgainReprompt)
	case IntentCancel, IntentStop:
		h.clearSession(r, req.Session.SessionID)
		return endSession(goodbyeSpeech)
	case IntentFallback:
		return h.handleFallback(r, req)
	default:
		slog.Warn("unhandled intent", "intent", req.Request.Intent.Name)
		return speakWithReprompt(fallbackSpeech, askAgainReprompt)
	}
}

func (h *Handler) handleChat(r *http.Request, req *RequestEnvelope) ResponseEnvelope {
	ctx := r.Context()
	query := strings.TrimSpace(req.SlotValue("query"))
	if query == "" {
		return speakWithReprompt(noQuestionSpeech, askAgainReprompt)
	}

	sess, err := h.sessions.Load(ctx, req.Session.SessionID)
	if err != nil {
		slog.Error("loading session", "error", err, "session_id", req.Session.SessionID)
		return speakWithReprompt(errorSpeech, errorSpeech)
	}
	sess.RepromptCount = 0

	res, err := h.turns.HandleTurn(ctx, req.Session.User.UserID, query, sess)
	if err != nil {
		slog.Error("turn failed", "error", err, "user_id", req.Session.User.UserID)
		return speakWithReprompt(errorSpeech, errorSpeech)
	}

	if err := h.sessions.Save(ctx, req.Session.SessionID, sess); err != nil {
		// The answer already exists; losing one save costs context, not
		// the turn.
		slog.Warn("saving session", "error", err, "session_id", req.Session.SessionID)
	}

	if res.EndSession {
		h.clearSession(r, req.Session.SessionID)
		return endSession(res.SpokenText)
	}
	return speakWithReprompt(res.SpokenText, askMoreReprompt)
}

func (h *Handler) handleSetTimezone(r *http.Request, req *RequestEnvelope) ResponseEnvelope {
	ctx := r.Context()
	tz := strings.TrimSpace(req.SlotValue("timezone"))
	if tz == "" {
		return speakWithReprompt(timezoneUnknownSpeech, askAgainReprompt)
	}

	userID := req.Session.User.UserID
	if err := h.quota.SetTimezone(ctx, userID, tz); err != nil {
		slog.Warn("setting timezone", "error", err, "user_id", userID, "timezone", tz)
		return speakWithReprompt(timezoneUnknownSpeech, askAgainReprompt)
	}

	h.audit.TimezoneChanged(ctx, userID, tz)
	return speakWithReprompt("Okay, your quota day now follows "+tz+".", askAgainReprompt)
}

// handleFallback escalates over consecutive missed utterances and lets the
// session go after the second one.
func (h *Handler) handleFallback(r *http.Request, req *RequestEnvelope) ResponseEnvelope {
	ctx := r.Context()
	sess, err := h.sessions.Load(ctx, req.Session.SessionID)
	if err != nil {
		slog.Warn("loading session for fallback", "error", err)
		return speakWithReprompt(fallbackSpeech, askAgainReprompt)
	}

	sess.RepromptCount++
	if err := h.sessions.Save(ctx, req.Session.SessionID, sess); err != nil {
		slog.Warn("saving session", "error", err, "session_id", req.Session.SessionID)
	}

	switch sess.RepromptCount {
	case 1:
		return speakWithReprompt(fallbackSpeech, askAgainReprompt)
	case 2:
		return speakWithReprompt(stillHereSpeech, stillHereSpeech)
	default:
		h.clearSession(r, req.Session.SessionID)
		return endSession(goodbyeSpeech)
	}
}

func (h *Handler) handleSessionEnded(r *http.Request, req *RequestEnvelope) ResponseEnvelope {
	slog.Info("session ended",
		"session_id", req.Session.SessionID,
		"reason", req.Request.Reason,
	)
	h.clearSession(r, req.Session.SessionID)
	return emptyResponse()
}

func (h *Handler) clearSession(r *http.Request, sessionID string) {
	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		slog.Warn("clearing session", "error", err, "session_id", sessionID)
	}
}
