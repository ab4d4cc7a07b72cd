// internal/workers/application/check-capacity/config.go
package checkcapacity

import (
	"time"

	"admissions-engine/internal/common/camunda"
)

func DefaultConfig() camunda.JobConfig {
	return camunda.JobConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
	}
}
