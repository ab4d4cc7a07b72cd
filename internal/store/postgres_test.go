package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"regexp"
	"testing"
	"time"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, logger.NewTestLogger(t)), mock
}

func recordJSON(t *testing.T, rec *models.ApplicationRecord) []byte {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return data
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := setupPostgresStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS applications")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertNewRecord(t *testing.T) {
	s, mock := setupPostgresStore(t)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rec := newRecord("app-1", models.StatusPending, now)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WithArgs("app-1", "fablab_subscription", "fablab-quarterly", "pending", false, int64(1), sqlmock.AnyArg(), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Save(context.Background(), rec))
	assert.Equal(t, int64(1), rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateUsesVersionCheck(t *testing.T) {
	s, mock := setupPostgresStore(t)
	now := time.Now().UTC()
	rec := newRecord("app-1", models.StatusApproved, now)
	rec.Version = 3
	rec.PendingEffects = []models.PendingEffect{{ID: "e1", Kind: models.EffectNotify, Notification: models.NotificationApproval}}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WithArgs("app-1", "approved", true, int64(4), sqlmock.AnyArg(), now, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Save(context.Background(), rec))
	assert.Equal(t, int64(4), rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StaleVersionConflicts(t *testing.T) {
	s, mock := setupPostgresStore(t)
	rec := newRecord("app-1", models.StatusApproved, time.Now().UTC())
	rec.Version = 2

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Save(context.Background(), rec)
	assert.ErrorIs(t, err, errors.ErrVersionConflict)
	assert.Equal(t, int64(2), rec.Version)
}

func TestPostgresStore_SaveFailureIsInfrastructure(t *testing.T) {
	s, mock := setupPostgresStore(t)
	cause := stderrors.New("connection reset by peer")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).WillReturnError(cause)

	err := s.Save(context.Background(), newRecord("app-1", models.StatusPending, time.Now()))
	assert.ErrorIs(t, err, errors.ErrInfrastructure)
	assert.ErrorIs(t, err, cause)
	assert.True(t, errors.IsRetryable(err))
}

func TestPostgresStore_Load(t *testing.T) {
	s, mock := setupPostgresStore(t)
	rec := newRecord("app-1", models.StatusPending, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectQuery(regexp.QuoteMeta(selectApplicationSQL)).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow(recordJSON(t, rec), int64(5)))

	loaded, err := s.Load(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "app-1", loaded.ID)
	assert.Equal(t, models.PlanQuarterly, loaded.Plan)
	assert.Equal(t, int64(5), loaded.Version)
}

func TestPostgresStore_LoadMissing(t *testing.T) {
	s, mock := setupPostgresStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectApplicationSQL)).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestPostgresStore_QueryBuildsFilter(t *testing.T) {
	s, mock := setupPostgresStore(t)
	rec := newRecord("app-1", models.StatusApproved, time.Now().UTC())

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT data, version FROM applications WHERE offering_ref = $1 AND status = ANY($2) AND has_pending_effects ORDER BY created_at, id LIMIT $3")).
		WithArgs("fablab-quarterly", sqlmock.AnyArg(), 50).
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow(recordJSON(t, rec), int64(2)))

	out, err := s.Query(context.Background(), models.Filter{
		OfferingRef:        "fablab-quarterly",
		Statuses:           []models.Status{models.StatusApproved, models.StatusCompleted},
		PendingEffectsOnly: true,
		Limit:              50,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildQuery_NoFilter(t *testing.T) {
	query, args := buildQuery(models.Filter{})
	assert.Equal(t, "SELECT data, version FROM applications ORDER BY created_at, id", query)
	assert.Empty(t, args)
}

func TestBuildQuery_AfterCursor(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	query, args := buildQuery(models.Filter{
		PendingEffectsOnly: true,
		After:              &models.Cursor{CreatedAt: at, ID: "app-7"},
		Limit:              100,
	})
	assert.Equal(t,
		"SELECT data, version FROM applications WHERE has_pending_effects AND (created_at, id) > ($1, $2) ORDER BY created_at, id LIMIT $3",
		query)
	assert.Equal(t, []interface{}{at, "app-7", 100}, args)
}
