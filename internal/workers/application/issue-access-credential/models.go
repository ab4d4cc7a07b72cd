// internal/workers/application/issue-access-credential/models.go
package issueaccesscredential

import "time"

type Input struct {
	ApplicationID string `json:"applicationId"`
	Actor         string `json:"actor"`
}

type Output struct {
	ApplicationID string    `json:"applicationId"`
	Key           string    `json:"credentialKey"`
	Plan          string    `json:"credentialPlan"`
	IssuedAt      time.Time `json:"credentialIssuedAt"`
	ExpiresAt     time.Time `json:"credentialExpiresAt"`
}

func (o *Output) Variables() map[string]interface{} {
	return map[string]interface{}{
		"applicationId":       o.ApplicationID,
		"credentialKey":       o.Key,
		"credentialPlan":      o.Plan,
		"credentialIssuedAt":  o.IssuedAt.Format(time.RFC3339),
		"credentialExpiresAt": o.ExpiresAt.Format(time.RFC3339),
	}
}
