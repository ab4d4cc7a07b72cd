// Package store persists application records behind the load/save/query contract the engine depends on.
package store

import (
	"context"

	"admissions-engine/internal/models"
)

// Store is read-your-writes per id. Save is a compare-and-set on Version:
// a record with Version 0 is inserted, any other version must match the stored one.
// On success Save bumps rec.Version; on mismatch it returns a VERSION_CONFLICT error.
type Store interface {
	Load(ctx context.Context, id string) (*models.ApplicationRecord, error)
	Save(ctx context.Context, rec *models.ApplicationRecord) error
	Query(ctx context.Context, filter models.Filter) ([]*models.ApplicationRecord, error)
}
