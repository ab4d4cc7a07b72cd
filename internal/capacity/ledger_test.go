package capacity

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"admissions-engine/internal/common/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func setupRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func ledgers(t *testing.T) map[string]Ledger {
	return map[string]Ledger{
		"memory": NewMemoryLedger(),
		"redis":  NewRedisLedger(setupRedis(t), "test"),
	}
}

func int64Ptr(v int64) *int64 { return &v }

// ==========================
// Core Functionality Tests
// ==========================

func TestLedger_IncrementIsIdempotentPerHolder(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c, err := l.Increment(ctx, "fablab-monthly", "app-1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), c.Enrolled)
			assert.Nil(t, c.Cap)

			c, err = l.Increment(ctx, "fablab-monthly", "app-1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), c.Enrolled, "replayed increment must not double count")

			c, err = l.Increment(ctx, "fablab-monthly", "app-2")
			require.NoError(t, err)
			assert.Equal(t, int64(2), c.Enrolled)

			holders, err := l.Holders(ctx, "fablab-monthly")
			require.NoError(t, err)
			assert.Equal(t, []string{"app-1", "app-2"}, holders)
		})
	}
}

func TestLedger_CapIsEnforced(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, l.SetCap(ctx, "workshop-3d", int64Ptr(2)))

			_, err := l.Increment(ctx, "workshop-3d", "a")
			require.NoError(t, err)
			_, err = l.Increment(ctx, "workshop-3d", "b")
			require.NoError(t, err)

			c, err := l.Increment(ctx, "workshop-3d", "c")
			assert.ErrorIs(t, err, errors.ErrCapacityExceeded)
			assert.Equal(t, int64(2), c.Enrolled)
			require.NotNil(t, c.Cap)
			assert.Equal(t, int64(2), *c.Cap)

			// an existing holder is not refused when full
			_, err = l.Increment(ctx, "workshop-3d", "a")
			assert.NoError(t, err)

			require.NoError(t, l.SetCap(ctx, "workshop-3d", nil))
			c, err = l.Increment(ctx, "workshop-3d", "c")
			require.NoError(t, err)
			assert.Equal(t, int64(3), c.Enrolled)
			assert.Nil(t, c.Cap)
		})
	}
}

func TestLedger_Decrement(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := l.Increment(ctx, "open-1", "a")
			require.NoError(t, err)

			c, err := l.Decrement(ctx, "open-1", "a")
			require.NoError(t, err)
			assert.Equal(t, int64(0), c.Enrolled)

			c, err = l.Decrement(ctx, "open-1", "a")
			require.NoError(t, err)
			assert.Equal(t, int64(0), c.Enrolled)
		})
	}
}

func TestLedger_OfferingsAreIndependent(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := l.Increment(ctx, "x", "a")
			require.NoError(t, err)

			c, err := l.Get(ctx, "y")
			require.NoError(t, err)
			assert.Equal(t, int64(0), c.Enrolled)
			assert.Equal(t, "y", c.OfferingRef)
		})
	}
}

// ==========================
// Concurrency Tests
// ==========================

func TestLedger_ConcurrentIncrementsRespectCap(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, l.SetCap(ctx, "popular", int64Ptr(10)))

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				accepted int
				refused  int
			)
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := l.Increment(ctx, "popular", fmt.Sprintf("app-%d", i))
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						accepted++
					} else if stderrors.Is(err, errors.ErrCapacityExceeded) {
						refused++
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, 10, accepted)
			assert.Equal(t, 30, refused)

			c, err := l.Get(ctx, "popular")
			require.NoError(t, err)
			assert.Equal(t, int64(10), c.Enrolled)
		})
	}
}

// ==========================
// Error Handling Tests
// ==========================

func TestRedisLedger_BackendFailureIsInfrastructure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewRedisLedger(client, "admissions")

	mock.ExpectSCard("admissions:capacity:{plan-1}:members").SetErr(stderrors.New("connection refused"))

	_, err := l.Get(context.Background(), "plan-1")
	assert.ErrorIs(t, err, errors.ErrInfrastructure)
	assert.True(t, errors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLedger_CapReadFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewRedisLedger(client, "")

	mock.ExpectSCard("capacity:{plan-1}:members").SetVal(3)
	mock.ExpectGet("capacity:{plan-1}:cap").SetErr(stderrors.New("i/o timeout"))

	_, err := l.Get(context.Background(), "plan-1")
	assert.ErrorIs(t, err, errors.ErrInfrastructure)
	assert.NoError(t, mock.ExpectationsWereMet())
}
