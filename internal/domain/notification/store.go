package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/apperror"
)

const resourceName = "notification"

// Store keeps the inbox for the acting user. Items are kept oldest first
// internally and returned newest first.
type Store struct {
	mu        sync.RWMutex
	items     []*Notification
	index     map[string]*Notification
	prefs     Preferences
	userID    string
	alerter   Alerter
	listeners []Listener
	logger    *zap.Logger
	now       func() time.Time
}

// NewStore creates an inbox owned by userID. alerter may be nil.
func NewStore(userID string, alerter Alerter, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		index:   make(map[string]*Notification),
		prefs:   DefaultPreferences(),
		userID:  userID,
		alerter: alerter,
		logger:  logger,
		now:     time.Now,
	}
}

// OnCreate registers a listener called after every successful Create
func (s *Store) OnCreate(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Seed loads existing notifications given newest first
func (s *Store) Seed(items ...Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(items) - 1; i >= 0; i-- {
		n := items[i]
		if n.ID == "" {
			return apperror.Required("id")
		}
		if _, exists := s.index[n.ID]; exists {
			return apperror.Validation("id", "duplicate id "+n.ID)
		}
		if n.UserID == "" {
			n.UserID = s.userID
		}
		s.items = append(s.items, &n)
		s.index[n.ID] = &n
	}
	return nil
}

// List returns matching notifications, newest first
func (s *Store) List(filter Filter) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Notification, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		if n := s.items[i]; filter.matches(n) {
			out = append(out, *n)
		}
	}
	return out
}

// Create stores a new unread notification at the head of the inbox, then
// raises an alert if the preferences allow it. The inbox owner always owns
// the stored notification regardless of Draft.UserID.
func (s *Store) Create(ctx context.Context, d Draft) (Notification, error) {
	if err := d.Validate(); err != nil {
		return Notification{}, err
	}

	id, err := newID()
	if err != nil {
		return Notification{}, apperror.Unexpected("generate notification id", err)
	}

	n := Notification{
		ID:        id,
		UserID:    s.userID,
		Title:     d.Title,
		Message:   d.Message,
		Type:      d.Type,
		Urgent:    d.Urgent,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	stored := n
	s.items = append(s.items, &stored)
	s.index[n.ID] = &stored
	prefs := s.prefs
	alerter := s.alerter
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if alerter != nil && prefs.AllowsPush(n.Urgent) {
		if err := alerter.Alert(ctx, n); err != nil {
			s.logger.Warn("alert delivery failed",
				zap.String("notification_id", n.ID),
				zap.Error(err))
		}
	}
	for _, l := range listeners {
		l(ctx, n, prefs)
	}

	return n, nil
}

// MarkRead flags a notification as read. Marking twice is harmless.
func (s *Store) MarkRead(id string) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index[id]
	if !ok {
		return Notification{}, apperror.NotFound(resourceName, id)
	}
	n.Read = true
	return *n, nil
}

// MarkAllRead flags every notification as read and returns how many changed
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, n := range s.items {
		if !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed
}

// UnreadCount counts unread notifications
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// Preferences returns the current delivery preferences
func (s *Store) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// SetPreferences replaces the delivery preferences
func (s *Store) SetPreferences(p Preferences) Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p
	return s.prefs
}

// UserID returns the inbox owner
func (s *Store) UserID() string { return s.userID }

// newID returns a time-ordered id; uuid v7 is monotonic within the process
func newID() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return "notif-" + u.String(), nil
}
