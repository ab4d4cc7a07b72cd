// internal/workers/application/revoke-access-credential/models.go
package revokeaccesscredential

type Input struct {
	ApplicationID string `json:"applicationId"`
	Actor         string `json:"actor"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	Revoked       bool   `json:"credentialRevoked"`
}

func (o *Output) Variables() map[string]interface{} {
	return map[string]interface{}{
		"applicationId":     o.ApplicationID,
		"credentialRevoked": o.Revoked,
	}
}
