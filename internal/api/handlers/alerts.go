package handlers

import (
	"net/http"

	"github.com/drfirst/go-rxportal/internal/delivery"
)

// AlertHandler exposes the transient alert feed the UI polls for toasts
type AlertHandler struct {
	feed *delivery.ToastFeed
}

// NewAlertHandler creates a new handler
func NewAlertHandler(feed *delivery.ToastFeed) *AlertHandler {
	return &AlertHandler{feed: feed}
}

// Drain handles GET /alerts: pending alerts, oldest first. Reading clears
// the feed.
func (h *AlertHandler) Drain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"alerts": h.feed.Drain()})
}
