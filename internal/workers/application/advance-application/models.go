// internal/workers/application/advance-application/models.go
package advanceapplication

type Input struct {
	ApplicationID string `json:"applicationId"`
	Actor         string `json:"actor"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"applicationStatus"`
	// CredentialKept is set when the completed record still carries its access credential.
	CredentialKept bool `json:"credentialKept"`
}

func (o *Output) Variables() map[string]interface{} {
	return map[string]interface{}{
		"applicationId":     o.ApplicationID,
		"applicationStatus": o.Status,
		"credentialKept":    o.CredentialKept,
	}
}
