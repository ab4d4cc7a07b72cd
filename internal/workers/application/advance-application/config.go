// internal/workers/application/advance-application/config.go
package advanceapplication

import (
	"time"

	"admissions-engine/internal/common/camunda"
)

func DefaultConfig() camunda.JobConfig {
	return camunda.JobConfig{
		Enabled:       true,
		MaxJobsActive: 10,
		Timeout:       10 * time.Second,
	}
}
