// internal/workers/application/review-document/config.go
package reviewdocument

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
