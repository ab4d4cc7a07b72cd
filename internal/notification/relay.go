// internal/notification/relay.go
package notification

import (
	"context"
	"time"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/common/metrics"
	"admissions-engine/internal/models"
)

// Source is the queue side the Relay drains. A Delivery stays recoverable until it is acked.
type Source interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	DeadLetter(ctx context.Context, dl DeadLetter) error
}

// Recoverer is implemented by sources that can requeue deliveries a crashed relay never acked.
type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

type RelayConfig struct {
	MaxAttempts int
	PollTimeout time.Duration
	RetryDelay  time.Duration
}

// Relay moves notifications from the queue to a Sender, retrying and dead-lettering on failure.
type Relay struct {
	source  Source
	sender  Sender
	deduper Deduper
	config  RelayConfig
	logger  logger.Logger
}

func NewRelay(source Source, sender Sender, deduper Deduper, cfg RelayConfig, log logger.Logger) *Relay {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	return &Relay{
		source:  source,
		sender:  sender,
		deduper: deduper,
		config:  cfg,
		logger:  log.WithFields(map[string]interface{}{"component": "notification-relay"}),
	}
}

// Run drains the queue until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("notification relay started", map[string]interface{}{
		"maxAttempts": r.config.MaxAttempts,
	})
	if rec, ok := r.source.(Recoverer); ok {
		if n, err := rec.Recover(ctx); err != nil {
			r.logger.Error("failed to recover unacknowledged notifications", map[string]interface{}{"error": err})
		} else if n > 0 {
			r.logger.Warn("requeued unacknowledged notifications", map[string]interface{}{"count": n})
		}
	}
	for ctx.Err() == nil {
		if _, err := r.ProcessOne(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("relay poll failed", map[string]interface{}{"error": err})
			r.sleep(ctx, time.Second)
		}
	}
	r.logger.Info("notification relay stopped", nil)
}

// ProcessOne waits for one notification and delivers it. It reports whether one was taken.
func (r *Relay) ProcessOne(ctx context.Context) (bool, error) {
	d, err := r.source.Dequeue(ctx, r.config.PollTimeout)
	if err != nil || d == nil {
		return false, err
	}
	r.deliver(ctx, d.Notification)
	if err := r.source.Ack(ctx, d); err != nil {
		r.logger.Warn("notification ack failed", map[string]interface{}{
			"notificationId": d.Notification.ID,
			"error":          err,
		})
	}
	return true, nil
}

func (r *Relay) deliver(ctx context.Context, n *models.Notification) {
	fields := map[string]interface{}{
		"notificationId": n.ID,
		"kind":           string(n.Kind),
		"applicationId":  n.ApplicationID,
	}

	seen, err := r.deduper.Delivered(ctx, n.ID)
	if err != nil {
		// we cannot tell a duplicate apart; deliver rather than drop
		r.logger.Warn("dedupe lookup failed", merge(fields, map[string]interface{}{"error": err}))
	} else if seen {
		r.logger.Info("duplicate notification skipped", fields)
		metrics.NotificationsDelivered.WithLabelValues(string(n.Kind), "duplicate").Inc()
		return
	}

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		attempts = attempt
		lastErr = r.sender.Send(ctx, n)
		if lastErr == nil {
			metrics.NotificationsDelivered.WithLabelValues(string(n.Kind), "sent").Inc()
			r.logger.Info("notification delivered", merge(fields, map[string]interface{}{"attempt": attempt}))
			if err := r.deduper.MarkDelivered(ctx, n.ID); err != nil {
				r.logger.Warn("dedupe record failed", merge(fields, map[string]interface{}{"error": err}))
			}
			return
		}
		if !errors.IsRetryable(lastErr) {
			break
		}
		r.logger.Warn("notification delivery failed", merge(fields, map[string]interface{}{
			"attempt": attempt,
			"error":   lastErr,
		}))
		r.sleep(ctx, time.Duration(attempt)*r.config.RetryDelay)
	}

	metrics.NotificationsDelivered.WithLabelValues(string(n.Kind), "failed").Inc()
	metrics.NotificationsDeadLettered.Inc()
	r.logger.Error("notification dead-lettered", merge(fields, map[string]interface{}{"error": lastErr}))

	dl := DeadLetter{
		Notification: *n,
		Error:        lastErr.Error(),
		Attempts:     attempts,
		FailedAt:     time.Now().UTC(),
	}
	if err := r.source.DeadLetter(ctx, dl); err != nil {
		r.logger.Error("dead letter write failed", merge(fields, map[string]interface{}{"error": err}))
	}
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func merge(a, b map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
