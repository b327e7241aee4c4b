package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/api/middleware"
	"github.com/drfirst/go-rxportal/internal/apperror"
	"github.com/drfirst/go-rxportal/internal/domain/consultation"
	"github.com/drfirst/go-rxportal/internal/portal"
)

// ConsultationHandler handles virtual consultation bookings
type ConsultationHandler struct {
	svc    *portal.Service
	logger *zap.Logger
}

// NewConsultationHandler creates a new handler
func NewConsultationHandler(svc *portal.Service, logger *zap.Logger) *ConsultationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsultationHandler{svc: svc, logger: logger}
}

// Routes returns the handler routes
func (h *ConsultationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Patch("/", h.Update)
	return r
}

// List handles GET /consultations?type=&status=
func (h *ConsultationHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter consultation.Filter
	q := r.URL.Query()
	if raw := q.Get("type"); raw != "" {
		t := consultation.Type(raw)
		if !t.Valid() {
			writeError(w, r, h.logger, apperror.Validation("type", "unknown type "+raw))
			return
		}
		filter.Type = &t
	}
	if raw := q.Get("status"); raw != "" {
		s := consultation.Status(raw)
		if !s.Valid() {
			writeError(w, r, h.logger, apperror.Validation("status", "unknown status "+raw))
			return
		}
		filter.Status = &s
	}

	writeJSON(w, http.StatusOK, map[string]any{"consultations": h.svc.Consultations(filter)})
}

// Create handles POST /consultations
func (h *ConsultationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft consultation.Draft
	if !decode(w, r, &draft) {
		return
	}
	if draft.UserID == "" {
		draft.UserID = middleware.GetActingUser(r.Context())
	}

	c, err := h.svc.BookConsultation(r.Context(), draft)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"consultation": c})
}

// ConsultationUpdateRequest is the PATCH body: the id plus fields to change
type ConsultationUpdateRequest struct {
	ID string `json:"id"`
	consultation.Patch
}

// Update handles PATCH /consultations
func (h *ConsultationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ConsultationUpdateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, r, h.logger, apperror.Required("id"))
		return
	}

	c, err := h.svc.UpdateConsultation(req.ID, req.Patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consultation": c})
}
