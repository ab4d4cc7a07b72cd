package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
camunda:
  broker_address: zeebe:26500
database:
  postgres:
    host: db
    database: admissions
    user: admissions
  redis:
    address: redis:6379
lifecycle:
  capacity_caps:
    fablab-monthly: 20
workers:
  decide-application:
    enabled: true
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "admission-manager", cfg.App.Name)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "admission-manager", cfg.Database.Postgres.ApplicationName)
	assert.Equal(t, "admissions:notifications", cfg.Notifications.Queue.Key)
	assert.Equal(t, "admissions:notifications:dead", cfg.Notifications.Queue.DeadLetterKey)
	assert.Equal(t, 8, cfg.Lifecycle.CredentialKeyLength)
	assert.Equal(t, time.Minute, GetDuration(cfg.Lifecycle.SweepInterval))
	assert.Equal(t, int64(20), cfg.Lifecycle.CapacityCaps["fablab-monthly"])

	worker := GetWorkerConfig(cfg, "decide-application")
	assert.True(t, worker.Enabled)
	assert.Equal(t, 5, worker.MaxJobsActive)
	assert.Equal(t, 30000, worker.Timeout)
	assert.True(t, IsWorkerEnabled(cfg, "not-configured"))

	assert.Contains(t, cfg.Database.Postgres.GetDSN(), "application_name=admission-manager connect_timeout=5")
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{
			name:    "short credential keys",
			extra:   "\n  credential_key_length: 4\n",
			wantErr: "credential_key_length",
		},
		{
			name:    "negative cap",
			extra:   "\n  capacity_caps:\n    fablab-yearly: -1\n",
			wantErr: "capacity_caps.fablab-yearly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `
camunda:
  broker_address: zeebe:26500
database:
  postgres:
    host: db
    database: admissions
    user: admissions
  redis:
    address: redis:6379
lifecycle:` + tt.extra
			_, err := LoadFromFile(writeConfig(t, body))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := LoadFromFile(writeConfig(t, "database:\n  redis:\n    address: redis:6379\n"))
	assert.ErrorContains(t, err, "camunda.broker_address is required")
}

func TestLoadFromFile_SearchNeedsAddresses(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, minimalConfig+"search:\n  enabled: true\n"))
	assert.ErrorContains(t, err, "elasticsearch.addresses")
}
