// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/models"

	"github.com/lib/pq"
)

// Schema creates the applications table. The full record lives in data; the other columns are
// projections used for filtering and the version check.
const Schema = `
CREATE TABLE IF NOT EXISTS applications (
    id                  TEXT PRIMARY KEY,
    category            TEXT NOT NULL,
    offering_ref        TEXT NOT NULL,
    status              TEXT NOT NULL,
    has_pending_effects BOOLEAN NOT NULL DEFAULT FALSE,
    version             BIGINT NOT NULL,
    data                JSONB NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_applications_offering_status ON applications (offering_ref, status);
CREATE INDEX IF NOT EXISTS idx_applications_pending_effects ON applications (has_pending_effects) WHERE has_pending_effects;
`

const (
	insertApplicationSQL = `INSERT INTO applications
    (id, category, offering_ref, status, has_pending_effects, version, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`

	updateApplicationSQL = `UPDATE applications
SET status = $2, has_pending_effects = $3, version = $4, data = $5, updated_at = $6
WHERE id = $1 AND version = $7`

	selectApplicationSQL = `SELECT data, version FROM applications WHERE id = $1`
)

// PostgresStore persists records in PostgreSQL through database/sql and lib/pq.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "postgres-store"}),
	}
}

// Migrate applies Schema. Safe to run on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.NewInfrastructureError("store.migrate", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*models.ApplicationRecord, error) {
	var (
		data    []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, selectApplicationSQL, id).Scan(&data, &version)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewInfrastructureError("store.load", err)
	}
	return decodeRecord(data, version)
}

func (s *PostgresStore) Save(ctx context.Context, rec *models.ApplicationRecord) error {
	next := rec.Version + 1

	snapshot := *rec
	snapshot.Version = next
	data, err := json.Marshal(&snapshot)
	if err != nil {
		return errors.NewInfrastructureError("store.encode", err)
	}

	var res sql.Result
	if rec.Version == 0 {
		res, err = s.db.ExecContext(ctx, insertApplicationSQL,
			rec.ID, string(rec.Category), rec.OfferingRef, string(rec.Status),
			len(rec.PendingEffects) > 0, next, data, rec.CreatedAt, rec.UpdatedAt)
	} else {
		res, err = s.db.ExecContext(ctx, updateApplicationSQL,
			rec.ID, string(rec.Status), len(rec.PendingEffects) > 0, next, data, rec.UpdatedAt, rec.Version)
	}
	if err != nil {
		return errors.NewInfrastructureError("store.save", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewInfrastructureError("store.save", err)
	}
	if affected == 0 {
		s.logger.Warn("version conflict on save", map[string]interface{}{
			"applicationId": rec.ID,
			"version":       rec.Version,
		})
		return errors.NewVersionConflictError(rec.ID, rec.Version)
	}

	rec.Version = next
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, filter models.Filter) ([]*models.ApplicationRecord, error) {
	query, args := buildQuery(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInfrastructureError("store.query", err)
	}
	defer rows.Close()

	out := make([]*models.ApplicationRecord, 0)
	for rows.Next() {
		var (
			data    []byte
			version int64
		)
		if err := rows.Scan(&data, &version); err != nil {
			return nil, errors.NewInfrastructureError("store.query", err)
		}
		rec, err := decodeRecord(data, version)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInfrastructureError("store.query", err)
	}
	return out, nil
}

func buildQuery(filter models.Filter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Category != "" {
		where = append(where, "category = "+arg(string(filter.Category)))
	}
	if filter.OfferingRef != "" {
		where = append(where, "offering_ref = "+arg(filter.OfferingRef))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status = ANY("+arg(pq.Array(statuses))+")")
	}
	if filter.PendingEffectsOnly {
		where = append(where, "has_pending_effects")
	}
	if filter.After != nil {
		where = append(where, "(created_at, id) > ("+arg(filter.After.CreatedAt)+", "+arg(filter.After.ID)+")")
	}

	var b strings.Builder
	b.WriteString("SELECT data, version FROM applications")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at, id")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT " + arg(filter.Limit))
	}
	return b.String(), args
}

func decodeRecord(data []byte, version int64) (*models.ApplicationRecord, error) {
	var rec models.ApplicationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.NewInfrastructureError("store.decode", err)
	}
	rec.Version = version
	return &rec, nil
}
