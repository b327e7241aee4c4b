package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/apperror"
	"github.com/drfirst/go-rxportal/internal/domain/notification"
	"github.com/drfirst/go-rxportal/internal/portal"
)

// NotificationHandler handles the inbox and preference endpoints
type NotificationHandler struct {
	svc    *portal.Service
	logger *zap.Logger
}

// NewNotificationHandler creates a new handler
func NewNotificationHandler(svc *portal.Service, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{svc: svc, logger: logger}
}

// Routes returns the inbox routes
func (h *NotificationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Patch("/", h.MarkRead)
	r.Post("/read-all", h.MarkAllRead)
	r.Get("/unread-count", h.UnreadCount)
	return r
}

// PreferenceRoutes returns the notification preference routes
func (h *NotificationHandler) PreferenceRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetPreferences)
	r.Put("/", h.SetPreferences)
	return r
}

// List handles GET /notifications?type=&urgentOnly=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter notification.Filter
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := notification.Type(raw)
		if !t.Valid() {
			writeError(w, r, h.logger, apperror.Validation("type", "unknown type "+raw))
			return
		}
		filter.Type = &t
	}
	urgentOnly, err := queryBool(r, "urgentOnly")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter.UrgentOnly = urgentOnly != nil && *urgentOnly

	items, unread := h.svc.Notifications(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": items,
		"unreadCount":   unread,
	})
}

// Create handles POST /notifications
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft notification.Draft
	if !decode(w, r, &draft) {
		return
	}
	n, err := h.svc.CreateNotification(r.Context(), draft)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"notification": n})
}

// MarkReadRequest is the body of PATCH /notifications
type MarkReadRequest struct {
	NotificationID string `json:"notificationId"`
}

// MarkRead handles PATCH /notifications
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if !decode(w, r, &req) {
		return
	}
	if req.NotificationID == "" {
		writeError(w, r, h.logger, apperror.Required("notificationId"))
		return
	}

	n, err := h.svc.MarkRead(req.NotificationID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notification": n,
		"unreadCount":  h.svc.UnreadCount(),
	})
}

// MarkAllRead handles POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	changed := h.svc.MarkAllRead()
	writeJSON(w, http.StatusOK, map[string]int{
		"updated":     changed,
		"unreadCount": h.svc.UnreadCount(),
	})
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": h.svc.UnreadCount()})
}

// GetPreferences handles GET /preferences/notifications
func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"preferences": h.svc.Preferences()})
}

// SetPreferences handles PUT /preferences/notifications
func (h *NotificationHandler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs notification.Preferences
	if !decode(w, r, &prefs) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": h.svc.SetPreferences(prefs)})
}
