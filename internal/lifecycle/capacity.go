package lifecycle

import (
	"context"
	"fmt"
	"sort"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

// GetCapacity returns the enrolled count and optional cap of an offering.
func (e *Engine) GetCapacity(ctx context.Context, offeringRef string) (models.Capacity, error) {
	return e.ledger.Get(ctx, offeringRef)
}

// SetCapacity sets the hard cap of an offering. A nil limit removes it.
func (e *Engine) SetCapacity(ctx context.Context, offeringRef string, limit *int64) error {
	if offeringRef == "" {
		return errors.NewValidationError("offeringRef: required")
	}
	if limit != nil && *limit < 0 {
		return errors.NewValidationError(fmt.Sprintf("cap: must not be negative, got %d", *limit))
	}
	return e.ledger.SetCap(ctx, offeringRef, limit)
}

// CapacityReport compares the ledger with the count derived from stored records.
type CapacityReport struct {
	OfferingRef string `json:"offeringRef"`
	Enrolled    int64  `json:"enrolled"`
	Recount     int64  `json:"recount"`
	Cap         *int64 `json:"cap,omitempty"`
	// Missing holds counted records the ledger does not hold a seat for.
	Missing []string `json:"missing,omitempty"`
	// Extra holds seats that no counted record accounts for.
	Extra []string `json:"extra,omitempty"`
}

// Drift is the ledger count minus the recount.
func (r CapacityReport) Drift() int64 {
	return r.Enrolled - r.Recount
}

func (r CapacityReport) Consistent() bool {
	return r.Drift() == 0 && len(r.Missing) == 0 && len(r.Extra) == 0
}

// CheckCapacity recounts an offering's approved and completed records and compares them with
// the ledger. Records whose capacity marker has not run yet show up as missing.
func (e *Engine) CheckCapacity(ctx context.Context, offeringRef string) (report CapacityReport, err error) {
	ctx, span := e.startSpan(ctx, "CheckCapacity", attribute.String("offering.ref", offeringRef))
	defer func() { e.finish(span, "check_capacity", err) }()

	report.OfferingRef = offeringRef

	recs, err := e.store.Query(ctx, models.Filter{
		OfferingRef: offeringRef,
		Statuses:    []models.Status{models.StatusApproved, models.StatusCompleted},
	})
	if err != nil {
		return report, storeError("store.query", err)
	}

	c, err := e.ledger.Get(ctx, offeringRef)
	if err != nil {
		return report, err
	}
	holders, err := e.ledger.Holders(ctx, offeringRef)
	if err != nil {
		return report, err
	}

	report.Enrolled = c.Enrolled
	report.Cap = c.Cap
	report.Recount = int64(len(recs))

	held := make(map[string]bool, len(holders))
	for _, h := range holders {
		held[h] = true
	}
	counted := make(map[string]bool, len(recs))
	for _, r := range recs {
		counted[r.ID] = true
		if !held[r.ID] {
			report.Missing = append(report.Missing, r.ID)
		}
	}
	for _, h := range holders {
		if !counted[h] {
			report.Extra = append(report.Extra, h)
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Extra)

	if !report.Consistent() {
		e.logger.Warn("capacity drift detected", map[string]interface{}{
			"offeringRef": offeringRef,
			"enrolled":    report.Enrolled,
			"recount":     report.Recount,
			"missing":     len(report.Missing),
			"extra":       len(report.Extra),
		})
	}
	return report, nil
}
