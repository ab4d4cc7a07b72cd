// Package credential issues time-bounded access keys for categories that grant physical access.
package credential

import (
	"time"

	"admissions-engine/internal/models"
)

// planMonths is the validity of each subscription plan. Plans not listed get adHocValidity.
var planMonths = map[models.Plan]int{
	models.PlanMonthly:   1,
	models.PlanQuarterly: 3,
	models.PlanYearly:    12,
}

const adHocValidity = 7 * 24 * time.Hour

// ExpiresAt returns when a credential issued at issuedAt on plan stops being valid.
func ExpiresAt(issuedAt time.Time, plan models.Plan) time.Time {
	if months, ok := planMonths[plan]; ok {
		return AddMonthsClamped(issuedAt, months)
	}
	return issuedAt.Add(adHocValidity)
}

// AddMonthsClamped adds months to t, clamping the day to the last day of the target month
// instead of rolling over: Jan 31 + 1 month is Feb 29 in 2024, Feb 29 + 12 months is Feb 28.
// Time of day and location are preserved.
func AddMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
