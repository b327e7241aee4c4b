package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/domain/accessibility"
	"github.com/drfirst/go-rxportal/internal/portal"
)

// AccessibilityHandler handles curbside and assisted pickup requests
type AccessibilityHandler struct {
	svc    *portal.Service
	logger *zap.Logger
}

// NewAccessibilityHandler creates a new handler
func NewAccessibilityHandler(svc *portal.Service, logger *zap.Logger) *AccessibilityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessibilityHandler{svc: svc, logger: logger}
}

// Routes returns the handler routes
func (h *AccessibilityHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/pickups", h.List)
	r.Post("/pickups", h.Create)
	r.Post("/pickups/{id}/complete", h.Complete)
	return r
}

// List handles GET /accessibility/pickups
func (h *AccessibilityHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pickups": h.svc.PickupRequests()})
}

// Create handles POST /accessibility/pickups
func (h *AccessibilityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft accessibility.Draft
	if !decode(w, r, &draft) {
		return
	}
	req, err := h.svc.RequestCurbsidePickup(r.Context(), draft)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"pickup": req})
}

// Complete handles POST /accessibility/pickups/{id}/complete
func (h *AccessibilityHandler) Complete(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.CompletePickup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pickup": req})
}
