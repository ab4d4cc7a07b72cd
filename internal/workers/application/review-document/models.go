// internal/workers/application/review-document/models.go
package reviewdocument

import "admissions-engine/internal/models"

type Input struct {
	ApplicationID string                   `json:"applicationId"`
	Document      string                   `json:"document"`
	State         models.VerificationState `json:"verificationState"`
	Actor         string                   `json:"actor"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	Document      string `json:"document"`
	State         string `json:"verificationState"`
	// AllValid is true once every document on the record has been marked valid.
	AllValid bool `json:"documentsValid"`
	Pending  int  `json:"documentsPending"`
}

func (o *Output) Variables() map[string]interface{} {
	return map[string]interface{}{
		"applicationId":     o.ApplicationID,
		"document":          o.Document,
		"verificationState": o.State,
		"documentsValid":    o.AllValid,
		"documentsPending":  o.Pending,
	}
}
