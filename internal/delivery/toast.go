// Package delivery routes notifications to the patient's channels: the
// in-app toast feed, email and SMS.
package delivery

import (
	"context"
	"sync"

	"github.com/drfirst/go-rxportal/internal/domain/notification"
)

// ToastFeed keeps the most recent transient alerts for the UI to poll. It
// implements notification.Alerter. Alerts are not part of notification state
// and are discarded once drained or pushed out by newer ones.
type ToastFeed struct {
	mu    sync.Mutex
	buf   []notification.Notification
	limit int
}

var _ notification.Alerter = (*ToastFeed)(nil)

// NewToastFeed creates a feed holding at most limit alerts
func NewToastFeed(limit int) *ToastFeed {
	if limit <= 0 {
		limit = 20
	}
	return &ToastFeed{limit: limit}
}

// Alert queues n for display
func (f *ToastFeed) Alert(_ context.Context, n notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf = append(f.buf, n)
	if over := len(f.buf) - f.limit; over > 0 {
		f.buf = append(f.buf[:0:0], f.buf[over:]...)
	}
	return nil
}

// Drain returns pending alerts, oldest first, and clears the feed
func (f *ToastFeed) Drain() []notification.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.buf
	f.buf = nil
	if out == nil {
		out = []notification.Notification{}
	}
	return out
}

// Len returns the number of pending alerts
func (f *ToastFeed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}
