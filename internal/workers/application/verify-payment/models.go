// internal/workers/application/verify-payment/models.go
package verifypayment

type Input struct {
	ApplicationID string `json:"applicationId"`
	Actor         string `json:"actor"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	PaymentState  string `json:"paymentState"`
	Status        string `json:"applicationStatus"`
}

func (o *Output) Variables() map[string]interface{} {
	return map[string]interface{}{
		"applicationId":     o.ApplicationID,
		"paymentState":      o.PaymentState,
		"applicationStatus": o.Status,
		"paymentVerified":   o.PaymentState == "verified",
	}
}
