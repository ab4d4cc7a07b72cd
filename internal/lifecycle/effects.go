package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/metrics"
	"admissions-engine/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

var (
	errCredentialNotIssued = stderrors.New("credential not issued yet")
	errReleasePending      = stderrors.New("previous credential release still pending")
)

// runEffects executes rec's pending markers in order and saves what is left. Succeeded markers
// are removed; failed ones keep their attempt count and last error for the next replay. A marker
// refused with a domain error cannot succeed by retrying, so it is parked on the record instead
// and only runs again through RequeueParkedEffects.
// Callers hold the record lock. The returned error joins every effect failure.
func (e *Engine) runEffects(ctx context.Context, rec *models.ApplicationRecord) (*models.ApplicationRecord, error) {
	if len(rec.PendingEffects) == 0 {
		return rec, nil
	}

	// effects belong to an already committed transition; a cancelled caller must not cut them short
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.effectTimeout)
	defer cancel()

	next := rec.Clone()
	var (
		remaining []models.PendingEffect
		failures  []error
	)
	for _, pe := range rec.PendingEffects {
		// effects see the results of earlier ones (an issued credential, a release)
		view := append([]models.PendingEffect(nil), remaining...)
		next.PendingEffects = append(view, pendingAfter(rec.PendingEffects, pe.ID)...)

		err := e.runEffect(ctx, next, pe)
		if err == nil {
			metrics.SideEffects.WithLabelValues(string(pe.Kind), "success").Inc()
			continue
		}

		pe.Attempts++
		pe.LastError = err.Error()
		failures = append(failures, fmt.Errorf("%s %s: %w", pe.Kind, pe.ID, err))
		fields := map[string]interface{}{
			"applicationId": rec.ID,
			"effectId":      pe.ID,
			"kind":          pe.Kind,
			"notification":  pe.Notification,
			"attempts":      pe.Attempts,
			"error":         err.Error(),
		}

		if errors.IsDomainError(err) {
			metrics.SideEffects.WithLabelValues(string(pe.Kind), "parked").Inc()
			e.logger.Error("side effect refused, parked for manual action", fields)
			next.ParkedEffects = append(next.ParkedEffects, pe)
			continue
		}
		metrics.SideEffects.WithLabelValues(string(pe.Kind), "failure").Inc()
		e.logger.Warn("side effect failed", fields)
		remaining = append(remaining, pe)
	}
	next.PendingEffects = remaining
	next.UpdatedAt = e.clock.Now()

	if err := e.commit(ctx, next); err != nil {
		// the effects are idempotent and the old markers are still stored, so a replay repeats them safely
		e.logger.Error("failed to save side effect results", map[string]interface{}{
			"applicationId": rec.ID,
			"error":         err.Error(),
		})
		return rec, stderrors.Join(append(failures, err)...)
	}
	return next, stderrors.Join(failures...)
}

// pendingAfter returns the markers that follow id in effects.
func pendingAfter(effects []models.PendingEffect, id string) []models.PendingEffect {
	for i, pe := range effects {
		if pe.ID == id {
			return effects[i+1:]
		}
	}
	return nil
}

func (e *Engine) runEffect(ctx context.Context, rec *models.ApplicationRecord, pe models.PendingEffect) error {
	ctx, span := e.startSpan(ctx, "effect."+string(pe.Kind),
		attribute.String("application.id", rec.ID),
		attribute.String("effect.id", pe.ID),
		attribute.Int("effect.attempts", pe.Attempts),
	)
	var err error
	defer func() { e.finish(span, "effect", err) }()

	switch pe.Kind {
	case models.EffectCapacityIncrement:
		if !rec.Status.Counted() {
			return nil
		}
		var c models.Capacity
		if c, err = e.ledger.Increment(ctx, rec.OfferingRef, rec.ID); err == nil {
			metrics.CapacityEnrolled.WithLabelValues(rec.OfferingRef).Set(float64(c.Enrolled))
		}
		return err

	case models.EffectCapacityDecrement:
		var c models.Capacity
		if c, err = e.ledger.Decrement(ctx, rec.OfferingRef, rec.ID); err == nil {
			metrics.CapacityEnrolled.WithLabelValues(rec.OfferingRef).Set(float64(c.Enrolled))
		}
		return err

	case models.EffectCredentialIssue:
		if rec.AccessCredential != nil || !rec.Status.Counted() {
			return nil
		}
		if rec.HasPendingEffect(models.EffectCredentialRelease, "") {
			err = errReleasePending
			return err
		}
		var cred *models.Credential
		if cred, err = e.issuer.Issue(ctx, rec.ID, rec.Plan); err != nil {
			return err
		}
		rec.AccessCredential = cred
		return nil

	case models.EffectCredentialRelease:
		err = e.issuer.Release(ctx, rec.ID)
		return err

	case models.EffectNotify:
		var n *models.Notification
		if n, err = e.notificationFor(rec, pe); err != nil {
			return err
		}
		if err = e.dispatcher.Enqueue(ctx, n); err != nil && !errors.IsRetryable(err) {
			err = errors.NewInfrastructureError("notification.enqueue", err)
		}
		return err
	}

	err = fmt.Errorf("unknown effect kind %q", pe.Kind)
	return err
}

// notificationFor builds the payload for a notify marker. The marker id is the delivery
// idempotency key, so a replayed enqueue is delivered at most once.
func (e *Engine) notificationFor(rec *models.ApplicationRecord, pe models.PendingEffect) (*models.Notification, error) {
	n := &models.Notification{
		ID:            pe.ID,
		Kind:          pe.Notification,
		ApplicationID: rec.ID,
		Category:      rec.Category,
		OfferingRef:   rec.OfferingRef,
		Recipient:     rec.Applicant,
		Decision:      rec.Status,
		Resend:        pe.Resend,
		CreatedAt:     pe.CreatedAt,
	}
	switch pe.Notification {
	case models.NotificationRejection:
		n.Notes = rec.DecisionNotes
	case models.NotificationCredential:
		if rec.AccessCredential == nil {
			return nil, errCredentialNotIssued
		}
		c := *rec.AccessCredential
		n.Credential = &c
	}
	return n, nil
}

// ReplayPendingEffects re-runs whatever side effects of id are still outstanding.
// It never repeats the transition itself. Parked effects are left alone.
func (e *Engine) ReplayPendingEffects(ctx context.Context, id string) (rec *models.ApplicationRecord, err error) {
	ctx, span := e.startSpan(ctx, "ReplayPendingEffects", attribute.String("application.id", id))
	defer func() { e.finish(span, "replay", err) }()

	unlock := e.records.Lock(id)
	defer unlock()

	current, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.replayLocked(ctx, current)
}

// RequeueParkedEffects moves id's parked effects back to pending and runs them, for instance
// after an offering's cap was raised. Attempt counts are kept.
func (e *Engine) RequeueParkedEffects(ctx context.Context, id, actor string) (rec *models.ApplicationRecord, err error) {
	ctx, span := e.startSpan(ctx, "RequeueParkedEffects", attribute.String("application.id", id))
	defer func() { e.finish(span, "requeue_parked", err) }()

	unlock := e.records.Lock(id)
	defer unlock()

	current, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(current.ParkedEffects) == 0 {
		return e.replayLocked(ctx, current)
	}

	next := current.Clone()
	next.PendingEffects = append(next.PendingEffects, next.ParkedEffects...)
	next.ParkedEffects = nil
	next.UpdatedAt = e.clock.Now()
	if err := e.commit(ctx, next); err != nil {
		return nil, err
	}

	e.logger.Info("parked side effects requeued", map[string]interface{}{
		"applicationId": id,
		"count":         len(current.ParkedEffects),
		"requestedBy":   actor,
	})
	return e.replayLocked(ctx, next)
}

// replayLocked runs current's pending effects. Only effects left pending make it an error;
// newly parked ones show up on the returned record.
func (e *Engine) replayLocked(ctx context.Context, current *models.ApplicationRecord) (*models.ApplicationRecord, error) {
	if len(current.PendingEffects) == 0 {
		return current, nil
	}

	next, err := e.runEffects(ctx, current)
	if next.Version != current.Version {
		e.emit(next, current.Status, "replay", "")
	}
	if err != nil && len(next.PendingEffects) > 0 {
		return next.Clone(), errors.NewInfrastructureError("lifecycle.replay", err)
	}
	return next.Clone(), nil
}

// ReplayReport summarizes one replay pass.
type ReplayReport struct {
	Scanned   int      `json:"scanned"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failedIds,omitempty"`
	Parked    int      `json:"parked"`
	ParkedIDs []string `json:"parkedIds,omitempty"`
}

// ReplayAll replays records that still carry pending markers, oldest first, up to limit
// (0 means all).
func (e *Engine) ReplayAll(ctx context.Context, limit int) (ReplayReport, error) {
	report, _, err := e.ReplayBatch(ctx, nil, limit)
	return report, err
}

// ReplayBatch is ReplayAll starting after the given cursor. It returns the cursor of the last
// record scanned, so consecutive batches walk every record instead of revisiting the oldest.
func (e *Engine) ReplayBatch(ctx context.Context, after *models.Cursor, limit int) (report ReplayReport, next *models.Cursor, err error) {
	ctx, span := e.startSpan(ctx, "ReplayAll")
	defer func() { e.finish(span, "replay_all", err) }()

	recs, err := e.store.Query(ctx, models.Filter{PendingEffectsOnly: true, After: after, Limit: limit})
	if err != nil {
		return report, nil, storeError("store.query", err)
	}

	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return report, next, err
		}
		report.Scanned++
		next = models.CursorOf(r)

		replayed, replayErr := e.ReplayPendingEffects(ctx, r.ID)
		if replayed != nil && len(replayed.ParkedEffects) > 0 {
			report.Parked++
			report.ParkedIDs = append(report.ParkedIDs, r.ID)
		}
		if replayErr != nil || (replayed != nil && len(replayed.PendingEffects) > 0) {
			report.Failed++
			report.FailedIDs = append(report.FailedIDs, r.ID)
			continue
		}
		report.Completed++
	}
	span.SetAttributes(
		attribute.Int("replay.scanned", report.Scanned),
		attribute.Int("replay.failed", report.Failed),
		attribute.Int("replay.parked", report.Parked),
	)
	return report, next, nil
}
