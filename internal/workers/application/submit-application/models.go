// internal/workers/application/submit-application/models.go
package submitapplication

import (
	"time"

	"admissions-engine/internal/models"
)

type Input struct {
	Submission models.Submission `json:"submission"`
}

type Output struct {
	ApplicationID string    `json:"applicationId"`
	Status        string    `json:"applicationStatus"`
	PaymentState  string    `json:"paymentState"`
	Plan          string    `json:"plan,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

func (o *Output) Variables() map[string]interface{} {
	vars := map[string]interface{}{
		"applicationId":     o.ApplicationID,
		"applicationStatus": o.Status,
		"paymentState":      o.PaymentState,
		"submittedAt":       o.SubmittedAt.Format(time.RFC3339),
	}
	if o.Plan != "" {
		vars["plan"] = o.Plan
	}
	return vars
}
