package lifecycle

import (
	"context"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

// IssueCredential returns the record's access credential, minting one if it has none.
// Repeated calls return the same key and expiry.
func (e *Engine) IssueCredential(ctx context.Context, id, actor string) (cred *models.Credential, err error) {
	ctx, span := e.startSpan(ctx, "IssueCredential", attribute.String("application.id", id))
	defer func() { e.finish(span, "issue_credential", err) }()

	unlock := e.records.Lock(id)
	defer unlock()

	current, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Category.Policy().RequiresCredential || !current.Status.Counted() {
		return nil, errors.NewInvalidTransitionError(id, string(current.Status), "credential_issued")
	}
	if current.AccessCredential != nil {
		c := *current.AccessCredential
		return &c, nil
	}

	next := current.Clone()
	changed := false
	// an explicit issue supersedes any parked attempt
	if parked := len(next.ParkedEffects); parked > 0 {
		next.ParkedEffects = dropEffects(next.ParkedEffects, credentialEffect)
		changed = len(next.ParkedEffects) != parked
	}
	if !next.HasPendingEffect(models.EffectCredentialIssue, "") {
		next.PendingEffects = append(next.PendingEffects, e.marker(models.EffectCredentialIssue, ""))
		changed = true
	}
	if !next.HasPendingEffect(models.EffectNotify, models.NotificationCredential) {
		next.PendingEffects = append(next.PendingEffects, e.marker(models.EffectNotify, models.NotificationCredential))
		changed = true
	}
	if changed {
		next.UpdatedAt = e.clock.Now()
		if err := e.commit(ctx, next); err != nil {
			return nil, err
		}
	}

	next, effectErr := e.runEffects(ctx, next)
	if next.AccessCredential == nil {
		if effectErr == nil {
			effectErr = errCredentialNotIssued
		}
		return nil, errors.NewInfrastructureError("credential.issue", effectErr)
	}

	e.emit(next, current.Status, "issue_credential", actor)
	c := *next.AccessCredential
	return &c, nil
}

// RevokeCredential clears the record's credential and frees its key, after which IssueCredential
// mints a new one. Revoking a record without a credential is a no-op.
func (e *Engine) RevokeCredential(ctx context.Context, id, actor string) (err error) {
	ctx, span := e.startSpan(ctx, "RevokeCredential", attribute.String("application.id", id))
	defer func() { e.finish(span, "revoke_credential", err) }()

	unlock := e.records.Lock(id)
	defer unlock()

	current, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.Counted() {
		return errors.NewInvalidTransitionError(id, string(current.Status), "credential_revoked")
	}
	pendingIssue := current.HasPendingEffect(models.EffectCredentialIssue, "")
	if current.AccessCredential == nil && !pendingIssue {
		return nil
	}

	next := current.Clone()
	next.AccessCredential = nil
	next.PendingEffects = dropEffects(next.PendingEffects, credentialEffect)
	next.ParkedEffects = dropEffects(next.ParkedEffects, credentialEffect)
	next.PendingEffects = append(next.PendingEffects, e.marker(models.EffectCredentialRelease, ""))
	next.UpdatedAt = e.clock.Now()
	if err := e.commit(ctx, next); err != nil {
		return err
	}

	e.logger.Info("access credential revoked", map[string]interface{}{
		"applicationId": id,
		"revokedBy":     actor,
	})

	next, _ = e.runEffects(ctx, next)
	e.emit(next, current.Status, "revoke_credential", actor)
	return nil
}

// ResendNotification queues kind again for id. It is the only way a notification is sent
// outside its originating transition.
func (e *Engine) ResendNotification(ctx context.Context, id string, kind models.NotificationKind, actor string) (err error) {
	ctx, span := e.startSpan(ctx, "ResendNotification",
		attribute.String("application.id", id),
		attribute.String("notification.kind", string(kind)),
	)
	defer func() { e.finish(span, "resend_notification", err) }()

	unlock := e.records.Lock(id)
	defer unlock()

	current, err := e.load(ctx, id)
	if err != nil {
		return err
	}

	switch kind {
	case models.NotificationApproval:
		if !current.Status.Counted() {
			return errors.NewInvalidTransitionError(id, string(current.Status), "notify:"+string(kind))
		}
	case models.NotificationRejection:
		if current.Status != models.StatusRejected {
			return errors.NewInvalidTransitionError(id, string(current.Status), "notify:"+string(kind))
		}
	case models.NotificationCredential:
		if current.AccessCredential == nil {
			return errors.NewInvalidTransitionError(id, string(current.Status), "notify:"+string(kind))
		}
	default:
		return errors.NewValidationError("kind: must be one of approval, rejection, credential")
	}

	next := current.Clone()
	pe := e.marker(models.EffectNotify, kind)
	pe.Resend = true
	next.PendingEffects = append(next.PendingEffects, pe)
	next.UpdatedAt = e.clock.Now()
	if err := e.commit(ctx, next); err != nil {
		return err
	}

	e.logger.Info("notification resend requested", map[string]interface{}{
		"applicationId": id,
		"kind":          kind,
		"requestedBy":   actor,
	})

	_, _ = e.runEffects(ctx, next)
	return nil
}

func credentialEffect(pe models.PendingEffect) bool {
	return pe.Kind == models.EffectCredentialIssue ||
		(pe.Kind == models.EffectNotify && pe.Notification == models.NotificationCredential)
}
