// internal/workers/application/replay-side-effects/config.go
package replaysideeffects

import (
	"time"

	"admissions-engine/internal/common/camunda"
)

// A full sweep may touch many records, so the timeout is generous.
func DefaultConfig() camunda.JobConfig {
	return camunda.JobConfig{
		Enabled:       true,
		MaxJobsActive: 2,
		Timeout:       2 * time.Minute,
	}
}
