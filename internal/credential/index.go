// internal/credential/index.go
package credential

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"admissions-engine/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// KeyIndex is the uniqueness index for issued keys. Every key maps to exactly one owner
// (an application id) and every owner holds at most one key.
type KeyIndex interface {
	// Reserve claims key for owner. It returns false when another owner already holds key,
	// and an ALREADY_ISSUED error when owner already holds a different key.
	// Reserving the key an owner already holds succeeds.
	Reserve(ctx context.Context, key, owner string) (bool, error)
	// OwnedBy returns the key owner holds, if any.
	OwnedBy(ctx context.Context, owner string) (string, bool, error)
	// Release frees owner's key. Releasing an owner without a key is a no-op.
	Release(ctx context.Context, owner string) error
}

// MemoryKeyIndex is a process-local KeyIndex.
type MemoryKeyIndex struct {
	mu         sync.Mutex
	keyToOwner map[string]string
	ownerToKey map[string]string
}

func NewMemoryKeyIndex() *MemoryKeyIndex {
	return &MemoryKeyIndex{
		keyToOwner: make(map[string]string),
		ownerToKey: make(map[string]string),
	}
}

func (m *MemoryKeyIndex) Reserve(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.ownerToKey[owner]; ok {
		if held == key {
			return true, nil
		}
		return false, errors.NewAlreadyIssuedError(owner, held)
	}
	if _, taken := m.keyToOwner[key]; taken {
		return false, nil
	}
	m.keyToOwner[key] = owner
	m.ownerToKey[owner] = key
	return true, nil
}

func (m *MemoryKeyIndex) OwnedBy(_ context.Context, owner string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.ownerToKey[owner]
	return key, ok, nil
}

func (m *MemoryKeyIndex) Release(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.ownerToKey[owner]; ok {
		delete(m.keyToOwner, key)
		delete(m.ownerToKey, owner)
	}
	return nil
}

// reserveScript: KEYS[1] key->owner, KEYS[2] owner->key, ARGV[1] owner, ARGV[2] key.
// Replies OK, TAKEN, or HELD:<key>.
var reserveScript = redis.NewScript(`
local held = redis.call('GET', KEYS[2])
if held then
  if held == ARGV[2] then return 'OK' end
  return 'HELD:' .. held
end
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
  return 'TAKEN'
end
redis.call('SET', KEYS[2], ARGV[2])
return 'OK'
`)

// releaseScript: KEYS[1] key->owner, KEYS[2] owner->key, ARGV[1] owner.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
end
redis.call('DEL', KEYS[2])
return 1
`)

// RedisKeyIndex shares the key index across engine instances.
type RedisKeyIndex struct {
	client *redis.Client
	prefix string
}

func NewRedisKeyIndex(client *redis.Client, prefix string) *RedisKeyIndex {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisKeyIndex{client: client, prefix: prefix}
}

func (r *RedisKeyIndex) keyKey(key string) string {
	return r.prefix + "credential:key:" + key
}

func (r *RedisKeyIndex) ownerKey(owner string) string {
	return r.prefix + "credential:owner:" + owner
}

func (r *RedisKeyIndex) Reserve(ctx context.Context, key, owner string) (bool, error) {
	reply, err := reserveScript.Run(ctx, r.client, []string{r.keyKey(key), r.ownerKey(owner)}, owner, key).Text()
	if err != nil {
		return false, errors.NewInfrastructureError("credential.reserve", err)
	}

	switch {
	case reply == "OK":
		return true, nil
	case reply == "TAKEN":
		return false, nil
	case strings.HasPrefix(reply, "HELD:"):
		return false, errors.NewAlreadyIssuedError(owner, strings.TrimPrefix(reply, "HELD:"))
	default:
		return false, errors.NewInfrastructureError("credential.reserve", fmt.Errorf("unexpected reply %q", reply))
	}
}

func (r *RedisKeyIndex) OwnedBy(ctx context.Context, owner string) (string, bool, error) {
	key, err := r.client.Get(ctx, r.ownerKey(owner)).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInfrastructureError("credential.lookup", err)
	}
	return key, true, nil
}

func (r *RedisKeyIndex) Release(ctx context.Context, owner string) error {
	key, ok, err := r.OwnedBy(ctx, owner)
	if err != nil || !ok {
		return err
	}
	if err := releaseScript.Run(ctx, r.client, []string{r.keyKey(key), r.ownerKey(owner)}, owner).Err(); err != nil {
		return errors.NewInfrastructureError("credential.release", err)
	}
	return nil
}
