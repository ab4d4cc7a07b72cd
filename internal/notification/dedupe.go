// internal/notification/dedupe.go
package notification

import (
	"context"
	"strings"
	"sync"
	"time"

	"admissions-engine/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers which notification ids were sent, so replayed enqueues are skipped.
// An id is only recorded after a successful send: a crash in between repeats the message
// rather than losing it.
type Deduper interface {
	Delivered(ctx context.Context, id string) (bool, error)
	MarkDelivered(ctx context.Context, id string) error
}

// RedisDeduper records ids as keys with a TTL.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduper) key(id string) string {
	return d.prefix + "notification:sent:" + id
}

func (d *RedisDeduper) Delivered(ctx context.Context, id string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(id)).Result()
	if err != nil {
		return false, errors.NewInfrastructureError("notification.dedupe", err)
	}
	return n > 0, nil
}

func (d *RedisDeduper) MarkDelivered(ctx context.Context, id string) error {
	if err := d.client.Set(ctx, d.key(id), time.Now().UTC().Format(time.RFC3339), d.ttl).Err(); err != nil {
		return errors.NewInfrastructureError("notification.dedupe", err)
	}
	return nil
}

// MemoryDeduper is a process-local Deduper without expiry.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) Delivered(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok, nil
}

func (d *MemoryDeduper) MarkDelivered(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = struct{}{}
	return nil
}
