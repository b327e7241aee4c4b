package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/domain/disposal"
	"github.com/drfirst/go-rxportal/internal/portal"
)

// DisposalHandler serves disposal guidance and reminders
type DisposalHandler struct {
	svc    *portal.Service
	logger *zap.Logger
}

// NewDisposalHandler creates a new handler
func NewDisposalHandler(svc *portal.Service, logger *zap.Logger) *DisposalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DisposalHandler{svc: svc, logger: logger}
}

// Routes returns the handler routes
func (h *DisposalHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/guidelines", h.Guidelines)
	r.Get("/locations", h.Locations)
	r.Post("/reminders", h.Remind)
	return r
}

// Guidelines handles GET /disposal/guidelines
func (h *DisposalHandler) Guidelines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"guidelines": disposal.Guidelines()})
}

// Locations handles GET /disposal/locations
func (h *DisposalHandler) Locations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"locations": disposal.Locations()})
}

// Remind handles POST /disposal/reminders
func (h *DisposalHandler) Remind(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.SendDisposalReminder(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"notification": n})
}
