// internal/models/credential.go
package models

import (
	"strings"
	"time"
)

// Plan is the FabLab plan type an access credential's validity is derived from.
type Plan string

const (
	PlanMonthly   Plan = "monthly"
	PlanQuarterly Plan = "quarterly"
	PlanYearly    Plan = "yearly"
	PlanWorkshop  Plan = "workshop"
)

// NormalizePlanName folds case and surrounding space, so " Monthly" and "monthly" name the same plan.
func NormalizePlanName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParsePlan normalizes a plan name. Unknown names map to PlanWorkshop.
func ParsePlan(s string) Plan {
	switch Plan(NormalizePlanName(s)) {
	case PlanMonthly:
		return PlanMonthly
	case PlanQuarterly:
		return PlanQuarterly
	case PlanYearly:
		return PlanYearly
	default:
		return PlanWorkshop
	}
}

// Credential is a time-bounded access key granted on approval.
type Credential struct {
	Key       string    `json:"key"`
	Plan      Plan      `json:"plan"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Capacity is the enrolled count of an offering and its optional hard cap.
type Capacity struct {
	OfferingRef string `json:"offeringRef"`
	Enrolled    int64  `json:"enrolled"`
	Cap         *int64 `json:"cap,omitempty"`
}

// Full reports whether another holder would breach the cap.
func (c Capacity) Full() bool {
	return c.Cap != nil && c.Enrolled >= *c.Cap
}
