// internal/workers/application/check-capacity/models.go
package checkcapacity

type Input struct {
	OfferingRef string `json:"offeringRef"`
}

type Output struct {
	OfferingRef string   `json:"offeringRef"`
	Enrolled    int64    `json:"enrolled"`
	Recount     int64    `json:"recount"`
	Cap         *int64   `json:"cap,omitempty"`
	Drift       int64    `json:"drift"`
	Consistent  bool     `json:"consistent"`
	Missing     []string `json:"missing"`
	Extra       []string `json:"extra"`
}

func (o *Output) Variables() map[string]interface{} {
	vars := map[string]interface{}{
		"offeringRef": o.OfferingRef,
		"enrolled":    o.Enrolled,
		"recount":     o.Recount,
		"drift":       o.Drift,
		"consistent":  o.Consistent,
		"missing":     nonNil(o.Missing),
		"extra":       nonNil(o.Extra),
	}
	if o.Cap != nil {
		vars["cap"] = *o.Cap
	}
	return vars
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
