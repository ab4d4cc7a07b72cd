// internal/workers/application/replay-side-effects/models.go
package replaysideeffects

type Input struct {
	// ApplicationID selects a single record. Empty means sweep.
	ApplicationID string `json:"applicationId,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	// RequeueParked also retries the record's parked effects. It needs ApplicationID and Actor.
	RequeueParked bool   `json:"requeueParked,omitempty"`
	Actor         string `json:"actor,omitempty"`
}

type Output struct {
	Scanned   int      `json:"scanned"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failedIds"`
	Parked    int      `json:"parked"`
	ParkedIDs []string `json:"parkedIds"`
	Remaining int      `json:"remaining"`
}

func (o *Output) Variables() map[string]interface{} {
	failed := o.FailedIDs
	if failed == nil {
		failed = []string{}
	}
	parked := o.ParkedIDs
	if parked == nil {
		parked = []string{}
	}
	return map[string]interface{}{
		"scanned":   o.Scanned,
		"completed": o.Completed,
		"failed":    o.Failed,
		"failedIds": failed,
		"parked":    o.Parked,
		"parkedIds": parked,
		"remaining": o.Remaining,
	}
}
