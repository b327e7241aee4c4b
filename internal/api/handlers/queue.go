package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/domain/queue"
)

// QueueHandler exposes the pickup queue simulator
type QueueHandler struct {
	sim    *queue.Simulator
	logger *zap.Logger
}

// NewQueueHandler creates a new handler
func NewQueueHandler(sim *queue.Simulator, logger *zap.Logger) *QueueHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueHandler{sim: sim, logger: logger}
}

// Routes returns the handler routes
func (h *QueueHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Put("/", h.Reset)
	r.Post("/alert", h.ToggleAlert)
	return r
}

// QueueView is the queue record plus derived fields
type QueueView struct {
	queue.Info
	Progress float64 `json:"progress"`
	YourTurn bool    `json:"yourTurn"`
}

func viewOf(info queue.Info) map[string]QueueView {
	return map[string]QueueView{"queue": {Info: info, Progress: info.Progress(), YourTurn: info.YourTurn()}}
}

// Get handles GET /queue
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(h.sim.Snapshot()))
}

// ToggleAlert handles POST /queue/alert
func (h *QueueHandler) ToggleAlert(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(h.sim.ToggleAlert(r.Context())))
}

// Reset handles PUT /queue: the patient joins a new line and the countdown
// restarts
func (h *QueueHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var info queue.Info
	if !decode(w, r, &info) {
		return
	}
	if err := h.sim.Seed(info); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.sim.Start()
	writeJSON(w, http.StatusOK, viewOf(h.sim.Snapshot()))
}
