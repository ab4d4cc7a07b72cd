package camunda

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"admissions-engine/internal/common/config"
	"admissions-engine/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Gateway Error Mapping Tests
// ==========================

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{fmt.Errorf("rpc error: code = Unavailable desc = connection refused"), true},
		{fmt.Errorf("context deadline exceeded"), true},
		{fmt.Errorf("rpc error: code = ResourceExhausted desc = resource exhausted"), true},
		{fmt.Errorf("rpc error: code = NotFound desc = job not found"), false},
		{fmt.Errorf("rpc error: code = PermissionDenied desc = permission denied"), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryableZeebeError(tt.err))
		})
	}
}

func TestMapZeebeError(t *testing.T) {
	transient := mapZeebeError(fmt.Errorf("connection reset by peer"), "complete", 2)
	assert.ErrorIs(t, transient, errors.ErrInfrastructure)
	assert.True(t, transient.Retryable)
	assert.Contains(t, transient.Details, "zeebe.complete")
	assert.Contains(t, transient.Details, "after 3 attempts")

	permanent := mapZeebeError(fmt.Errorf("job with key 42 not found"), "complete", 0)
	assert.ErrorIs(t, permanent, errors.ErrInfrastructure)
	assert.False(t, permanent.Retryable)
	assert.NotContains(t, permanent.Details, "attempts")
}

// ==========================
// Job Config Tests
// ==========================

func TestResolveJobConfig(t *testing.T) {
	defaults := JobConfig{Enabled: true, MaxJobsActive: 5, Timeout: 30 * time.Second}

	t.Run("custom config wins", func(t *testing.T) {
		custom := &JobConfig{Enabled: false, MaxJobsActive: 1, Timeout: time.Second}
		assert.Same(t, custom, ResolveJobConfig(&config.Config{}, "decide-application", custom, defaults))
	})

	t.Run("defaults without app config", func(t *testing.T) {
		cfg := ResolveJobConfig(nil, "decide-application", nil, defaults)
		assert.Equal(t, defaults, *cfg)
	})

	t.Run("worker section overrides", func(t *testing.T) {
		app := &config.Config{Workers: map[string]config.WorkerConfig{
			"decide-application": {Enabled: false, MaxJobsActive: 2, Timeout: 1500},
		}}
		cfg := ResolveJobConfig(app, "decide-application", nil, defaults)
		assert.False(t, cfg.Enabled)
		assert.Equal(t, 2, cfg.MaxJobsActive)
		assert.Equal(t, 1500*time.Millisecond, cfg.Timeout)
	})

	t.Run("unset fields keep defaults", func(t *testing.T) {
		app := &config.Config{Workers: map[string]config.WorkerConfig{
			"decide-application": {Enabled: true},
		}}
		cfg := ResolveJobConfig(app, "decide-application", nil, defaults)
		assert.Equal(t, 5, cfg.MaxJobsActive)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
	})
}

func TestJobConfig_Validate(t *testing.T) {
	assert.NoError(t, (&JobConfig{MaxJobsActive: 1, Timeout: time.Second}).Validate())
	assert.ErrorContains(t, (&JobConfig{MaxJobsActive: 1}).Validate(), "timeout must be positive")
	assert.ErrorContains(t, (&JobConfig{Timeout: time.Second}).Validate(), "max_jobs_active must be positive")
}

// ==========================
// Variable Helper Tests
// ==========================

func TestVariables(t *testing.T) {
	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"applicationId": "  app-1 ",
		"blank": "   ",
		"number": 3,
		"fraction": 2.5,
		"text": "seven",
		"flag": true,
		"submission": {"category": "university", "offeringRef": "licence-informatique"}
	}`), &vars))

	assert.Equal(t, "app-1", String(vars, "applicationId"))
	assert.Empty(t, String(vars, "number"))

	_, err := RequireString(vars, "blank")
	assert.ErrorIs(t, err, errors.ErrValidation)
	id, err := RequireString(vars, "applicationId")
	require.NoError(t, err)
	assert.Equal(t, "app-1", id)

	n, ok, err := Int(vars, "number")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	_, ok, err = Int(vars, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = Int(vars, "fraction")
	assert.ErrorIs(t, err, errors.ErrValidation)
	_, _, err = Int(vars, "text")
	assert.ErrorIs(t, err, errors.ErrValidation)

	flag, err := Bool(vars, "flag")
	require.NoError(t, err)
	assert.True(t, flag)
	flag, err = Bool(vars, "missing")
	require.NoError(t, err)
	assert.False(t, flag)
	_, err = Bool(vars, "text")
	assert.ErrorIs(t, err, errors.ErrValidation)

	var sub struct {
		Category    string `json:"category"`
		OfferingRef string `json:"offeringRef"`
	}
	require.NoError(t, Decode(vars, "submission", &sub))
	assert.Equal(t, "university", sub.Category)
	assert.Equal(t, "licence-informatique", sub.OfferingRef)

	assert.ErrorIs(t, Decode(vars, "absent", &sub), errors.ErrValidation)
	assert.ErrorIs(t, Decode(vars, "text", &sub), errors.ErrValidation)
}
