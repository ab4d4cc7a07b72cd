// Package capacity tracks enrolled counts per offering.
//
// A count is the size of the offering's holder set, keyed by application id, so replaying an
// increment or decrement for the same application never drifts the count.
package capacity

import (
	"context"
	"sort"
	"sync"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/models"
)

// Ledger is atomic per offering. Offerings never coordinate with each other.
type Ledger interface {
	// Increment adds holderID to the offering. Fails with CAPACITY_EXCEEDED when a cap is set and
	// already reached. Adding an existing holder is a no-op.
	Increment(ctx context.Context, offeringRef, holderID string) (models.Capacity, error)
	// Decrement removes holderID. Removing an absent holder is a no-op.
	Decrement(ctx context.Context, offeringRef, holderID string) (models.Capacity, error)
	Get(ctx context.Context, offeringRef string) (models.Capacity, error)
	// SetCap sets or, with nil, clears the hard cap.
	SetCap(ctx context.Context, offeringRef string, limit *int64) error
	Holders(ctx context.Context, offeringRef string) ([]string, error)
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	holders map[string]map[string]struct{}
	caps    map[string]int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		holders: make(map[string]map[string]struct{}),
		caps:    make(map[string]int64),
	}
}

func (l *MemoryLedger) Increment(_ context.Context, offeringRef, holderID string) (models.Capacity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set := l.holders[offeringRef]
	if set == nil {
		set = make(map[string]struct{})
		l.holders[offeringRef] = set
	}
	if _, ok := set[holderID]; ok {
		return l.snapshot(offeringRef), nil
	}
	if limit, ok := l.caps[offeringRef]; ok && int64(len(set)) >= limit {
		return l.snapshot(offeringRef), errors.NewCapacityExceededError(offeringRef, limit)
	}
	set[holderID] = struct{}{}
	return l.snapshot(offeringRef), nil
}

func (l *MemoryLedger) Decrement(_ context.Context, offeringRef, holderID string) (models.Capacity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.holders[offeringRef], holderID)
	return l.snapshot(offeringRef), nil
}

func (l *MemoryLedger) Get(_ context.Context, offeringRef string) (models.Capacity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot(offeringRef), nil
}

func (l *MemoryLedger) SetCap(_ context.Context, offeringRef string, limit *int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit == nil {
		delete(l.caps, offeringRef)
		return nil
	}
	l.caps[offeringRef] = *limit
	return nil
}

func (l *MemoryLedger) Holders(_ context.Context, offeringRef string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.holders[offeringRef]))
	for id := range l.holders[offeringRef] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// snapshot must be called with mu held.
func (l *MemoryLedger) snapshot(offeringRef string) models.Capacity {
	c := models.Capacity{OfferingRef: offeringRef, Enrolled: int64(len(l.holders[offeringRef]))}
	if limit, ok := l.caps[offeringRef]; ok {
		c.Cap = &limit
	}
	return c
}
