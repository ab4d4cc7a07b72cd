// internal/workers/application/decide-application/models.go
package decideapplication

import (
	"time"

	"admissions-engine/internal/models"
)

type Input struct {
	ApplicationID string         `json:"applicationId"`
	Outcome       models.Outcome `json:"outcome"`
	Actor         string         `json:"actor"`
	Notes         string         `json:"notes,omitempty"`
}

type Output struct {
	ApplicationID       string     `json:"applicationId"`
	Status              string     `json:"applicationStatus"`
	DecidedAt           time.Time  `json:"decidedAt"`
	DecidedBy           string     `json:"decidedBy"`
	CredentialKey       string     `json:"credentialKey,omitempty"`
	CredentialExpiresAt *time.Time `json:"credentialExpiresAt,omitempty"`
	PendingEffects      int        `json:"pendingEffects"`
}

// Variables is what the job completes with.
func (o *Output) Variables() map[string]interface{} {
	vars := map[string]interface{}{
		"applicationId":     o.ApplicationID,
		"applicationStatus": o.Status,
		"decidedAt":         o.DecidedAt.Format(time.RFC3339),
		"decidedBy":         o.DecidedBy,
		"pendingEffects":    o.PendingEffects,
	}
	if o.CredentialKey != "" {
		vars["credentialKey"] = o.CredentialKey
	}
	if o.CredentialExpiresAt != nil {
		vars["credentialExpiresAt"] = o.CredentialExpiresAt.Format(time.RFC3339)
	}
	return vars
}
