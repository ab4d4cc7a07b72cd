// internal/capacity/redis.go
package capacity

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

// incrementScript adds a holder unless the cap is already reached.
// Returns {status, enrolled}: 1 added, 0 already a holder, -1 cap reached.
var incrementScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
  return {0, redis.call('SCARD', KEYS[1])}
end
local n = redis.call('SCARD', KEYS[1])
local cap = redis.call('GET', KEYS[2])
if cap and n >= tonumber(cap) then
  return {-1, n}
end
redis.call('SADD', KEYS[1], ARGV[1])
return {1, n + 1}
`)

var decrementScript = redis.NewScript(`
redis.call('SREM', KEYS[1], ARGV[1])
return redis.call('SCARD', KEYS[1])
`)

// RedisLedger keeps holder sets in Redis so every engine instance shares one count.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

func NewRedisLedger(client *redis.Client, prefix string) *RedisLedger {
	return &RedisLedger{client: client, prefix: prefix}
}

func (l *RedisLedger) membersKey(offeringRef string) string {
	return fmt.Sprintf("%scapacity:{%s}:members", l.keyPrefix(), offeringRef)
}

func (l *RedisLedger) capKey(offeringRef string) string {
	return fmt.Sprintf("%scapacity:{%s}:cap", l.keyPrefix(), offeringRef)
}

func (l *RedisLedger) keyPrefix() string {
	if l.prefix == "" {
		return ""
	}
	return l.prefix + ":"
}

func (l *RedisLedger) Increment(ctx context.Context, offeringRef, holderID string) (models.Capacity, error) {
	res, err := incrementScript.Run(ctx, l.client,
		[]string{l.membersKey(offeringRef), l.capKey(offeringRef)}, holderID).Int64Slice()
	if err != nil {
		return models.Capacity{}, errors.NewInfrastructureError("capacity.increment", err)
	}
	if len(res) != 2 {
		return models.Capacity{}, errors.NewInfrastructureError("capacity.increment",
			fmt.Errorf("unexpected script reply %v", res))
	}

	limit, err := l.readCap(ctx, offeringRef)
	if err != nil {
		return models.Capacity{}, err
	}
	c := models.Capacity{OfferingRef: offeringRef, Enrolled: res[1], Cap: limit}
	if res[0] == -1 {
		var reached int64
		if limit != nil {
			reached = *limit
		}
		return c, errors.NewCapacityExceededError(offeringRef, reached)
	}
	return c, nil
}

func (l *RedisLedger) Decrement(ctx context.Context, offeringRef, holderID string) (models.Capacity, error) {
	n, err := decrementScript.Run(ctx, l.client, []string{l.membersKey(offeringRef)}, holderID).Int64()
	if err != nil {
		return models.Capacity{}, errors.NewInfrastructureError("capacity.decrement", err)
	}
	limit, err := l.readCap(ctx, offeringRef)
	if err != nil {
		return models.Capacity{}, err
	}
	return models.Capacity{OfferingRef: offeringRef, Enrolled: n, Cap: limit}, nil
}

func (l *RedisLedger) Get(ctx context.Context, offeringRef string) (models.Capacity, error) {
	n, err := l.client.SCard(ctx, l.membersKey(offeringRef)).Result()
	if err != nil {
		return models.Capacity{}, errors.NewInfrastructureError("capacity.get", err)
	}
	limit, err := l.readCap(ctx, offeringRef)
	if err != nil {
		return models.Capacity{}, err
	}
	return models.Capacity{OfferingRef: offeringRef, Enrolled: n, Cap: limit}, nil
}

func (l *RedisLedger) SetCap(ctx context.Context, offeringRef string, limit *int64) error {
	var err error
	if limit == nil {
		err = l.client.Del(ctx, l.capKey(offeringRef)).Err()
	} else {
		err = l.client.Set(ctx, l.capKey(offeringRef), *limit, 0).Err()
	}
	if err != nil {
		return errors.NewInfrastructureError("capacity.set_cap", err)
	}
	return nil
}

func (l *RedisLedger) Holders(ctx context.Context, offeringRef string) ([]string, error) {
	members, err := l.client.SMembers(ctx, l.membersKey(offeringRef)).Result()
	if err != nil {
		return nil, errors.NewInfrastructureError("capacity.holders", err)
	}
	sort.Strings(members)
	return members, nil
}

func (l *RedisLedger) readCap(ctx context.Context, offeringRef string) (*int64, error) {
	raw, err := l.client.Get(ctx, l.capKey(offeringRef)).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInfrastructureError("capacity.read_cap", err)
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.NewInfrastructureError("capacity.read_cap", err)
	}
	return &limit, nil
}
