// internal/workers/application/revert-application/models.go
package revertapplication

import "time"

type Input struct {
	ApplicationID string `json:"applicationId"`
	Actor         string `json:"actor"`
	Reason        string `json:"reason"`
}

type Output struct {
	ApplicationID  string    `json:"applicationId"`
	Status         string    `json:"applicationStatus"`
	RevertedAt     time.Time `json:"revertedAt"`
	RevertedBy     string    `json:"revertedBy"`
	PendingEffects int       `json:"pendingEffects"`
}

func (o *Output) Variables() map[string]interface{} {
	return map[string]interface{}{
		"applicationId":     o.ApplicationID,
		"applicationStatus": o.Status,
		"revertedAt":        o.RevertedAt.Format(time.RFC3339),
		"revertedBy":        o.RevertedBy,
		"pendingEffects":    o.PendingEffects,
	}
}
