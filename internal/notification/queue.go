// internal/notification/queue.go
package notification

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a durable FIFO of notifications on a Redis list. A dequeued payload is moved to a
// processing list and stays there until it is acknowledged, so a relay that dies mid-delivery
// leaves it recoverable.
type RedisQueue struct {
	client        *redis.Client
	key           string
	processingKey string
	deadLetterKey string
}

func NewRedisQueue(client *redis.Client, key, deadLetterKey string) *RedisQueue {
	return &RedisQueue{
		client:        client,
		key:           key,
		processingKey: key + ":processing",
		deadLetterKey: deadLetterKey,
	}
}

// WithConsumer gives this relay instance its own processing list, so Recover on one instance
// never takes over another's in-flight deliveries.
func (q *RedisQueue) WithConsumer(name string) *RedisQueue {
	if name != "" {
		q.processingKey = q.key + ":processing:" + name
	}
	return q
}

// Delivery is a dequeued notification awaiting Ack.
type Delivery struct {
	Notification *models.Notification
	payload      string
}

// Enqueue implements Dispatcher.
func (q *RedisQueue) Enqueue(ctx context.Context, n *models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return errors.NewInfrastructureError("notification.encode", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return errors.NewInfrastructureError("notification.enqueue", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the oldest notification. It returns nil, nil on timeout.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	payload, err := q.client.BLMove(ctx, q.key, q.processingKey, "RIGHT", "LEFT", timeout).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInfrastructureError("notification.dequeue", err)
	}

	var n models.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		// a payload we cannot decode will never deliver; park it with the dead letters
		pipe := q.client.TxPipeline()
		pipe.LPush(ctx, q.deadLetterKey, payload)
		pipe.LRem(ctx, q.processingKey, 1, payload)
		_, _ = pipe.Exec(ctx)
		return nil, errors.NewInfrastructureError("notification.decode", err)
	}
	return &Delivery{Notification: &n, payload: payload}, nil
}

// Ack removes a finished delivery from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processingKey, 1, d.payload).Err(); err != nil {
		return errors.NewInfrastructureError("notification.ack", err)
	}
	return nil
}

// Recover puts deliveries left unacknowledged by a previous run back at the head of the queue.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey, q.key, "LEFT", "RIGHT").Err()
		if stderrors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, errors.NewInfrastructureError("notification.recover", err)
		}
		moved++
	}
}

// InFlight reports the number of dequeued but unacknowledged notifications.
func (q *RedisQueue) InFlight(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.processingKey).Result()
	if err != nil {
		return 0, errors.NewInfrastructureError("notification.len", err)
	}
	return n, nil
}

// DeadLetter is a notification that exhausted its delivery attempts.
type DeadLetter struct {
	Notification models.Notification `json:"notification"`
	Error        string              `json:"error"`
	Attempts     int                 `json:"attempts"`
	FailedAt     time.Time           `json:"failedAt"`
}

func (q *RedisQueue) DeadLetter(ctx context.Context, dl DeadLetter) error {
	payload, err := json.Marshal(dl)
	if err != nil {
		return errors.NewInfrastructureError("notification.encode", err)
	}
	if err := q.client.LPush(ctx, q.deadLetterKey, payload).Err(); err != nil {
		return errors.NewInfrastructureError("notification.dead_letter", err)
	}
	return nil
}

// Len reports the number of queued notifications.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, errors.NewInfrastructureError("notification.len", err)
	}
	return n, nil
}

// DeadLetters returns up to limit dead letters, newest first.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int64) ([]DeadLetter, error) {
	raw, err := q.client.LRange(ctx, q.deadLetterKey, 0, limit-1).Result()
	if err != nil {
		return nil, errors.NewInfrastructureError("notification.dead_letters", err)
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, r := range raw {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(r), &dl); err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}
