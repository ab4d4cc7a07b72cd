// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/models"
)

// MemoryStore keeps records in process. Used by tests and single-node development runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.ApplicationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.ApplicationRecord)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*models.ApplicationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, errors.NewNotFoundError(id)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, rec *models.ApplicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.records[rec.ID]
	switch {
	case rec.Version == 0 && exists:
		return errors.NewVersionConflictError(rec.ID, 0)
	case rec.Version != 0 && !exists:
		return errors.NewNotFoundError(rec.ID)
	case exists && current.Version != rec.Version:
		return errors.NewVersionConflictError(rec.ID, rec.Version)
	}

	rec.Version++
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Query(_ context.Context, filter models.Filter) ([]*models.ApplicationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ApplicationRecord, 0)
	for _, rec := range s.records {
		if filter.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
