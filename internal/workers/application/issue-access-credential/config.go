// internal/workers/application/issue-access-credential/config.go
package issueaccesscredential

import (
	"time"

	"admissions-engine/internal/common/camunda"
)

func DefaultConfig() camunda.JobConfig {
	return camunda.JobConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       20 * time.Second,
	}
}
