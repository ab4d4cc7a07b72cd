// internal/workers/application/decide-application/config.go
package decideapplication

import (
	"time"

	"admissions-engine/internal/common/camunda"
)

// DefaultConfig leaves room for the ledger, the key index and the notification queue to run
// inside the job before it completes.
func DefaultConfig() camunda.JobConfig {
	return camunda.JobConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
	}
}
