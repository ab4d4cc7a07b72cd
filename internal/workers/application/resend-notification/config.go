// internal/workers/application/resend-notification/config.go
package resendnotification

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
