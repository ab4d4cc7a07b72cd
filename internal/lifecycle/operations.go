package lifecycle

import (
	"context"
	stderrors "errors"
	"strings"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

// Submit validates sub and stores a new pending record.
func (e *Engine) Submit(ctx context.Context, sub *models.Submission) (rec *models.ApplicationRecord, err error) {
	ctx, span := e.startSpan(ctx, "Submit", attribute.String("application.category", string(sub.Category)))
	defer func() { e.finish(span, "submit", err) }()

	if err := e.validator.Validate(sub); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	rec = &models.ApplicationRecord{
		ID:           e.newID(),
		Category:     sub.Category,
		Applicant:    sub.Applicant,
		OfferingRef:  sub.OfferingRef,
		Plan:         planFor(sub),
		Status:       models.StatusPending,
		PaymentState: models.PaymentUnpaid,
		PaymentProof: sub.PaymentProof,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if strings.TrimSpace(sub.PaymentProof) != "" {
		rec.PaymentState = models.PaymentSubmitted
	}
	for _, d := range sub.Documents {
		d.VerificationState = models.DocumentPending
		rec.Documents = append(rec.Documents, d)
	}
	span.SetAttributes(attribute.String("application.id", rec.ID))

	if err := e.commit(ctx, rec); err != nil {
		return nil, err
	}

	e.logger.Info("application submitted", map[string]interface{}{
		"applicationId": rec.ID,
		"category":      rec.Category,
		"offeringRef":   rec.OfferingRef,
	})
	e.emit(rec, "", "submit", "")
	return rec.Clone(), nil
}

func planFor(sub *models.Submission) models.Plan {
	switch sub.Category {
	case models.CategoryFabLabSubscription:
		return models.ParsePlan(sub.Plan)
	case models.CategoryFabLabWorkshop:
		return models.PlanWorkshop
	default:
		return ""
	}
}

// Decide moves a pending record to approved or rejected. Exactly one concurrent caller wins;
// the others get ALREADY_DECIDED. Side effects run after the commit and never fail the call.
func (e *Engine) Decide(ctx context.Context, id string, outcome models.Outcome, actor, notes string) (rec *models.ApplicationRecord, err error) {
	ctx, span := e.startSpan(ctx, "Decide",
		attribute.String("application.id", id),
		attribute.String("decision.outcome", string(outcome)),
	)
	defer func() { e.finish(span, "decide", err) }()

	if outcome != models.OutcomeApprove && outcome != models.OutcomeReject {
		return nil, errors.NewValidationError("outcome: must be one of approve, reject")
	}
	if strings.TrimSpace(actor) == "" {
		return nil, errors.NewValidationError("actor: required")
	}

	unlock := e.records.Lock(id)
	defer unlock()

	current, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusPending {
		return nil, errors.NewAlreadyDecidedError(id, string(current.Status))
	}

	next := current.Clone()
	now := e.clock.Now()
	next.DecidedAt = &now
	next.DecidedBy = actor
	next.DecisionNotes = strings.TrimSpace(notes)
	next.UpdatedAt = now

	switch outcome {
	case models.OutcomeApprove:
		if current.Category.Policy().RequiresPayment && current.PaymentState != models.PaymentVerified {
			return nil, errors.NewPaymentNotVerifiedError(id, string(current.PaymentState))
		}

		// the cap check and the seat it reserves must not interleave with another approval
		releaseOffering := e.offerings.Lock(current.OfferingRef)
		defer releaseOffering()
		if err := e.checkCap(ctx, current); err != nil {
			return nil, err
		}

		next.Status = models.StatusApproved
		next.PendingEffects = append(next.PendingEffects, e.marker(models.EffectCapacityIncrement, ""))
		if current.Category.Policy().RequiresCredential {
			next.PendingEffects = append(next.PendingEffects, e.marker(models.EffectCredentialIssue, ""))
		}
		next.PendingEffects = append(next.PendingEffects, e.marker(models.EffectNotify, models.NotificationApproval))
		if current.Category.Policy().RequiresCredential {
			next.PendingEffects = append(next.PendingEffects, e.marker(models.EffectNotify, models.NotificationCredential))
		}

	case models.OutcomeReject:
		if next.DecisionNotes == "" {
			return nil, errors.NewMissingReasonError(id)
		}
		next.Status = models.StatusRejected
		next.PendingEffects = append(next.PendingEffects, e.marker(models.EffectNotify, models.NotificationRejection))
	}

	if err := e.commit(ctx, next); err != nil {
		if stderrors.Is(err, errors.ErrVersionConflict) {
			// another process decided first
			if latest, loadErr := e.load(ctx, id); loadErr == nil && latest.Status != models.StatusPending {
				return nil, errors.NewAlreadyDecidedError(id, string(latest.Status))
			}
		}
		return nil, err
	}

	e.logger.Info("application decided", map[string]interface{}{
		"applicationId": id,
		"status":        next.Status,
		"decidedBy":     actor,
	})

	next, _ = e.runEffects(ctx, next)
	e.emit(next, models.StatusPending, "decide", actor)
	return next.Clone(), nil
}

// checkCap refuses an approval that would breach the offering's hard cap.
func (e *Engine) checkCap(ctx context.Context, rec *models.ApplicationRecord) error {
	c, err := e.ledger.Get(ctx, rec.OfferingRef)
	if err != nil {
		return err
	}
	if !c.Full() {
		return nil
	}
	holders, err := e.ledger.Holders(ctx, rec.OfferingRef)
	if err != nil {
		return err
	}
	for _, h := range holders {
		if h == rec.ID {
			return nil
		}
	}
	return errors.NewCapacityExceededError(rec.OfferingRef, *c.Cap)
}

// Advance moves an approved record to completed. Completed records are returned unchanged.
func (e *Engine) Advance(ctx context.Context, id, actor string) (rec *models.ApplicationRecord, err error) {
	ctx, span := e.startSpan(ctx, "Advance", attribute.String("application.id", id))
	defer func() { e.finish(span, "advance", err) }()

	unlock := e.records.Lock(id)
	defer unlock()

	current, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case models.StatusCompleted:
		return current, nil
	case models.StatusApproved:
	default:
		return nil, errors.NewInvalidTransitionError(id, string(current.Status), string(models.StatusCompleted))
	}

	next := current.Clone()
	next.Status = models.StatusCompleted
	next.UpdatedAt = e.clock.Now()
	if err := e.commit(ctx, next); err != nil {
		return nil, err
	}

	e.emit(next, models.StatusApproved, "advance", actor)
	return next.Clone(), nil
}

// VerifyPayment marks a pending record's submitted payment proof as verified.
func (e *Engine) VerifyPayment(ctx context.Context, id, actor string) (rec *models.ApplicationRecord, err error) {
	ctx, span := e.startSpan(ctx, "VerifyPayment", attribute.String("application.id", id))
	defer func() { e.finish(span, "verify_payment", err) }()

	unlock := e.records.Lock(id)
	defer unlock()

	current, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusPending {
		return nil, errors.NewAlreadyDecidedError(id, string(current.Status))
	}
	switch current.PaymentState {
	case models.PaymentVerified:
		return current, nil
	case models.PaymentUnpaid:
		return nil, errors.NewValidationError("paymentProof: no payment proof on file")
	}

	next := current.Clone()
	next.PaymentState = models.PaymentVerified
	next.UpdatedAt = e.clock.Now()
	if err := e.commit(ctx, next); err != nil {
		return nil, err
	}

	e.emit(next, current.Status, "verify_payment", actor)
	return next.Clone(), nil
}

// ReviewDocument records the verification outcome of one document. It never changes status.
func (e *Engine) ReviewDocument(ctx context.Context, id, name string, state models.VerificationState, actor string) (rec *models.ApplicationRecord, err error) {
	ctx, span := e.startSpan(ctx, "ReviewDocument",
		attribute.String("application.id", id),
		attribute.String("document.name", name),
	)
	defer func() { e.finish(span, "review_document", err) }()

	switch state {
	case models.DocumentPending, models.DocumentValid, models.DocumentInvalid:
	default:
		return nil, errors.NewValidationError("verificationState: must be one of pending, valid, invalid")
	}

	unlock := e.records.Lock(id)
	defer unlock()

	current, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusPending {
		return nil, errors.NewAlreadyDecidedError(id, string(current.Status))
	}

	next := current.Clone()
	doc, ok := next.Document(name)
	if !ok {
		return nil, errors.NewValidationError("documents: no document named " + name)
	}
	if doc.VerificationState == state {
		return current, nil
	}
	doc.VerificationState = state
	next.UpdatedAt = e.clock.Now()
	if err := e.commit(ctx, next); err != nil {
		return nil, err
	}

	e.emit(next, current.Status, "review_document", actor)
	return next.Clone(), nil
}

// Revert is the administrative override that withdraws an approval. The record ends rejected,
// its seat and credential are released and the applicant is sent a rejection.
func (e *Engine) Revert(ctx context.Context, id, actor, reason string) (rec *models.ApplicationRecord, err error) {
	ctx, span := e.startSpan(ctx, "Revert", attribute.String("application.id", id))
	defer func() { e.finish(span, "revert", err) }()

	if strings.TrimSpace(actor) == "" {
		return nil, errors.NewValidationError("actor: required")
	}

	unlock := e.records.Lock(id)
	defer unlock()

	current, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusApproved {
		return nil, errors.NewInvalidTransitionError(id, string(current.Status), string(models.StatusRejected))
	}
	if strings.TrimSpace(reason) == "" {
		return nil, errors.NewMissingReasonError(id)
	}

	now := e.clock.Now()
	next := current.Clone()
	next.Status = models.StatusRejected
	next.DecisionNotes = strings.TrimSpace(reason)
	next.RevertedAt = &now
	next.RevertedBy = actor
	next.AccessCredential = nil
	next.UpdatedAt = now

	// approval effects that never ran must not run after the revert
	approvalEffect := func(pe models.PendingEffect) bool {
		return pe.Kind == models.EffectCapacityIncrement ||
			pe.Kind == models.EffectCredentialIssue ||
			(pe.Kind == models.EffectNotify && pe.Notification != models.NotificationRejection)
	}
	next.PendingEffects = dropEffects(next.PendingEffects, approvalEffect)
	next.ParkedEffects = dropEffects(next.ParkedEffects, approvalEffect)
	next.PendingEffects = append(next.PendingEffects, e.marker(models.EffectCapacityDecrement, ""))
	if current.Category.Policy().RequiresCredential {
		next.PendingEffects = append(next.PendingEffects, e.marker(models.EffectCredentialRelease, ""))
	}
	next.PendingEffects = append(next.PendingEffects, e.marker(models.EffectNotify, models.NotificationRejection))

	if err := e.commit(ctx, next); err != nil {
		return nil, err
	}

	e.logger.Warn("approval reverted", map[string]interface{}{
		"applicationId": id,
		"revertedBy":    actor,
	})

	next, _ = e.runEffects(ctx, next)
	e.emit(next, models.StatusApproved, "revert", actor)
	return next.Clone(), nil
}

func dropEffects(effects []models.PendingEffect, drop func(models.PendingEffect) bool) []models.PendingEffect {
	out := effects[:0]
	for _, pe := range effects {
		if !drop(pe) {
			out = append(out, pe)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
