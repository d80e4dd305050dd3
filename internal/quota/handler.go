package quota

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/snowball-voice/snowball/internal/api"
)

// Handler exposes the quota status read endpoint for operators.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// GetStatus returns the user's current admission state. It reads through
// the same rollover logic as a turn, so a stale record shows as zero usage.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	adm, err := h.manager.CheckAdmission(r.Context(), userID)
	if err != nil {
		slog.Error("reading quota status", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, adm)
}
