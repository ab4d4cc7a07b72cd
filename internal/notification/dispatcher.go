// Package notification carries user-facing notifications from committed transitions to delivery.
//
// The engine only enqueues. Delivery, retries and dead-lettering belong to the Relay, which drains
// the queue on its own schedule.
package notification

import (
	"context"
	"sync"

	"admissions-engine/internal/models"
)

// Dispatcher durably accepts a notification for later delivery. A nil error means the
// notification will not be lost if the process exits right after.
type Dispatcher interface {
	Enqueue(ctx context.Context, n *models.Notification) error
}

// MemoryDispatcher records enqueued notifications in process. Used by tests and local runs.
type MemoryDispatcher struct {
	mu   sync.Mutex
	sent []models.Notification
}

func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{}
}

func (d *MemoryDispatcher) Enqueue(_ context.Context, n *models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, *n)
	return nil
}

// Sent returns a copy of every enqueued notification, oldest first.
func (d *MemoryDispatcher) Sent() []models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Notification(nil), d.sent...)
}

// Count returns how many notifications of kind were enqueued for applicationID.
func (d *MemoryDispatcher) Count(applicationID string, kind models.NotificationKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, s := range d.sent {
		if s.ApplicationID == applicationID && s.Kind == kind {
			n++
		}
	}
	return n
}
