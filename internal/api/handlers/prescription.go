package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/api/middleware"
	"github.com/drfirst/go-rxportal/internal/apperror"
	"github.com/drfirst/go-rxportal/internal/domain/prescription"
	fhir "github.com/drfirst/go-rxportal/internal/fhir/r5"
	"github.com/drfirst/go-rxportal/internal/portal"
)

// PrescriptionHandler handles prescription endpoints
type PrescriptionHandler struct {
	svc    *portal.Service
	logger *zap.Logger
}

// NewPrescriptionHandler creates a new handler
func NewPrescriptionHandler(svc *portal.Service, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{svc: svc, logger: logger}
}

// Routes returns the handler routes
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Patch("/", h.Update)
	r.Get("/costs", h.Costs)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/fhir", h.FHIR)
	r.Put("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/refill", h.Refill)
	r.Post("/{id}/pickup", h.Pickup)
	return r
}

type prescriptionResponse struct {
	Prescription prescription.Prescription `json:"prescription"`
}

// List handles GET /prescriptions?status=&urgent=
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter prescription.Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := prescription.ParseStatus(raw)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		filter.Status = &status
	}
	urgent, err := queryBool(r, "urgent")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter.Urgent = urgent

	writeJSON(w, http.StatusOK, map[string]any{"prescriptions": h.svc.Prescriptions(filter)})
}

// Create handles POST /prescriptions
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft prescription.Draft
	if !decode(w, r, &draft) {
		return
	}

	rx, err := h.svc.CreatePrescription(r.Context(), draft)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, prescriptionResponse{Prescription: rx})
}

// UpdateRequest is the PATCH body: the id plus any fields to overwrite
type UpdateRequest struct {
	ID string `json:"id"`
	prescription.Patch
}

// Update handles PATCH /prescriptions
func (h *PrescriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, r, h.logger, apperror.Required("id"))
		return
	}

	rx, err := h.svc.UpdatePrescription(r.Context(), req.ID, req.Patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, prescriptionResponse{Prescription: rx})
}

// Get handles GET /prescriptions/{id}
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	rx, err := h.svc.Prescription(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, prescriptionResponse{Prescription: rx})
}

// FHIR handles GET /prescriptions/{id}/fhir
func (h *PrescriptionHandler) FHIR(w http.ResponseWriter, r *http.Request) {
	rx, err := h.svc.Prescription(chi.URLParam(r, "id"))
	if apperror.IsNotFound(err) {
		writeFHIR(w, http.StatusNotFound, fhir.NewErrorOutcome("not-found", err.Error()))
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	patientID := middleware.GetActingUser(r.Context())
	if patientID == "" {
		patientID = h.svc.UserID()
	}
	writeFHIR(w, http.StatusOK, fhir.FromPrescription(rx, patientID))
}

func writeFHIR(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// StatusRequest is the body of PUT /prescriptions/{id}/status
type StatusRequest struct {
	Status prescription.Status `json:"status"`
}

// UpdateStatus handles PUT /prescriptions/{id}/status
func (h *PrescriptionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeError(w, r, h.logger, apperror.Required("status"))
		return
	}

	rx, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, prescriptionResponse{Prescription: rx})
}

// Refill handles POST /prescriptions/{id}/refill
func (h *PrescriptionHandler) Refill(w http.ResponseWriter, r *http.Request) {
	rx, err := h.svc.RequestRefill(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, prescriptionResponse{Prescription: rx})
}

// Pickup handles POST /prescriptions/{id}/pickup
func (h *PrescriptionHandler) Pickup(w http.ResponseWriter, r *http.Request) {
	rx, err := h.svc.Pickup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, prescriptionResponse{Prescription: rx})
}

// Costs handles GET /prescriptions/costs
func (h *PrescriptionHandler) Costs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.CostSummary())
}
