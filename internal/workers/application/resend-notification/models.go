// internal/workers/application/resend-notification/models.go
package resendnotification

import "admissions-engine/internal/models"

type Input struct {
	ApplicationID string                  `json:"applicationId"`
	Kind          models.NotificationKind `json:"kind"`
	Actor         string                  `json:"actor"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	Kind          string `json:"notificationKind"`
	Queued        bool   `json:"notificationQueued"`
}

func (o *Output) Variables() map[string]interface{} {
	return map[string]interface{}{
		"applicationId":      o.ApplicationID,
		"notificationKind":   o.Kind,
		"notificationQueued": o.Queued,
	}
}
