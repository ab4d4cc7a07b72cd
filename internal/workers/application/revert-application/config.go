// internal/workers/application/revert-application/config.go
package revertapplication

import (
	"time"

	"admissions-engine/internal/common/camunda"
)

// Reverts are rare administrative overrides; one at a time is enough.
func DefaultConfig() camunda.JobConfig {
	return camunda.JobConfig{
		Enabled:       true,
		MaxJobsActive: 1,
		Timeout:       30 * time.Second,
	}
}
