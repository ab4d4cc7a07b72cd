// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admissions-engine/internal/capacity"
	"admissions-engine/internal/common/camunda"
	"admissions-engine/internal/common/clock"
	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/common/validation"
	"admissions-engine/internal/credential"
	"admissions-engine/internal/lifecycle"
	"admissions-engine/internal/models"
	"admissions-engine/internal/notification"
	"admissions-engine/internal/store"

	advanceapplication "admissions-engine/internal/workers/application/advance-application"
	checkcapacity "admissions-engine/internal/workers/application/check-capacity"
	decideapplication "admissions-engine/internal/workers/application/decide-application"
	replaysideeffects "admissions-engine/internal/workers/application/replay-side-effects"
	resendnotification "admissions-engine/internal/workers/application/resend-notification"
	revertapplication "admissions-engine/internal/workers/application/revert-application"
	reviewdocument "admissions-engine/internal/workers/application/review-document"
	submitapplication "admissions-engine/internal/workers/application/submit-application"
	verifypayment "admissions-engine/internal/workers/application/verify-payment"
)

// ==========================
// Test Environment
// ==========================

// recordingSender stands in for SES/SNS.
type recordingSender struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (s *recordingSender) Send(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, *n)
	return nil
}

func (s *recordingSender) kinds() []models.NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(s.sent))
	for _, n := range s.sent {
		out = append(out, n.Kind)
	}
	return out
}

type env struct {
	engine *lifecycle.Engine
	queue  *notification.RedisQueue
	relay  *notification.Relay
	sender *recordingSender
	index  *credential.RedisKeyIndex
	clock  *clock.FakeClock
	// queueRedis backs only the notification queue, so it can fail on its own.
	queueRedis *miniredis.Miniredis

	submit  *submitapplication.Handler
	verify  *verifypayment.Handler
	review  *reviewdocument.Handler
	decide  *decideapplication.Handler
	advance *advanceapplication.Handler
	revert  *revertapplication.Handler
	resend  *resendnotification.Handler
	replay  *replaysideeffects.Handler
	check   *checkcapacity.Handler
}

func setupEnv(t *testing.T) *env {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	qmr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(qmr.Close)

	queueClient := redis.NewClient(&redis.Options{Addr: qmr.Addr()})
	t.Cleanup(func() { _ = queueClient.Close() })

	log := logger.NewTestLogger(t)
	validator, err := validation.NewSubmissionValidator()
	require.NoError(t, err)

	e := &env{
		queue:      notification.NewRedisQueue(queueClient, "e2e:notifications", "e2e:notifications:dead"),
		sender:     &recordingSender{},
		index:      credential.NewRedisKeyIndex(client, "e2e"),
		clock:      clock.Fake(time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)),
		queueRedis: qmr,
	}
	e.relay = notification.NewRelay(e.queue, e.sender, notification.NewRedisDeduper(queueClient, "e2e", time.Hour),
		notification.RelayConfig{MaxAttempts: 2, PollTimeout: 100 * time.Millisecond}, log)

	e.engine, err = lifecycle.New(lifecycle.Options{
		Store:      store.NewMemoryStore(),
		Ledger:     capacity.NewRedisLedger(client, "e2e"),
		Issuer:     credential.NewIssuer(e.index, e.clock, log),
		Dispatcher: e.queue,
		Validator:  validator,
		Clock:      e.clock,
		Logger:     log,
	})
	require.NoError(t, err)

	cfg := &camunda.JobConfig{Enabled: true, MaxJobsActive: 1, Timeout: 5 * time.Second}
	e.submit, err = submitapplication.NewHandler(submitapplication.HandlerOptions{CustomConfig: cfg, Logger: log, Service: e.engine})
	require.NoError(t, err)
	e.verify, err = verifypayment.NewHandler(verifypayment.HandlerOptions{CustomConfig: cfg, Logger: log, Service: e.engine})
	require.NoError(t, err)
	e.review, err = reviewdocument.NewHandler(reviewdocument.HandlerOptions{CustomConfig: cfg, Logger: log, Service: e.engine})
	require.NoError(t, err)
	e.decide, err = decideapplication.NewHandler(decideapplication.HandlerOptions{CustomConfig: cfg, Logger: log, Service: e.engine})
	require.NoError(t, err)
	e.advance, err = advanceapplication.NewHandler(advanceapplication.HandlerOptions{CustomConfig: cfg, Logger: log, Service: e.engine})
	require.NoError(t, err)
	e.revert, err = revertapplication.NewHandler(revertapplication.HandlerOptions{CustomConfig: cfg, Logger: log, Service: e.engine})
	require.NoError(t, err)
	e.resend, err = resendnotification.NewHandler(resendnotification.HandlerOptions{CustomConfig: cfg, Logger: log, Service: e.engine})
	require.NoError(t, err)
	e.replay, err = replaysideeffects.NewHandler(replaysideeffects.HandlerOptions{CustomConfig: cfg, Logger: log, Service: e.engine})
	require.NoError(t, err)
	e.check, err = checkcapacity.NewHandler(checkcapacity.HandlerOptions{CustomConfig: cfg, Logger: log, Service: e.engine})
	require.NoError(t, err)

	return e
}

// drain relays everything currently queued.
func (e *env) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	n, err := e.queue.Len(ctx)
	require.NoError(t, err)
	for i := int64(0); i < n; i++ {
		took, err := e.relay.ProcessOne(ctx)
		require.NoError(t, err)
		require.True(t, took)
	}
}

func (e *env) submitFabLab(t *testing.T, name, plan string) string {
	t.Helper()
	out, err := e.submit.Execute(context.Background(), &submitapplication.Input{Submission: models.Submission{
		Category:     models.CategoryFabLabSubscription,
		Applicant:    models.Applicant{Name: name, Email: name + "@example.org"},
		OfferingRef:  "fablab-" + plan,
		Plan:         plan,
		PaymentProof: "receipt-" + name,
	}})
	require.NoError(t, err)
	assert.Equal(t, "submitted", out.PaymentState)
	return out.ApplicationID
}

func (e *env) approve(t *testing.T, id string) (*decideapplication.Output, error) {
	t.Helper()
	ctx := context.Background()
	_, err := e.verify.Execute(ctx, &verifypayment.Input{ApplicationID: id, Actor: "cashier"})
	require.NoError(t, err)
	return e.decide.Execute(ctx, &decideapplication.Input{ApplicationID: id, Outcome: models.OutcomeApprove, Actor: "admin-1"})
}

// ==========================
// Lifecycle Flows
// ==========================

func TestE2E_FabLabSubscriptionLifecycle(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	id := e.submitFabLab(t, "fatou", "monthly")

	decided, err := e.approve(t, id)
	require.NoError(t, err)
	assert.Equal(t, "approved", decided.Status)
	assert.Zero(t, decided.PendingEffects)
	require.NotEmpty(t, decided.CredentialKey)
	require.NotNil(t, decided.CredentialExpiresAt)
	// a month after Jan 31 clamps to the end of February
	assert.Equal(t, time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC), *decided.CredentialExpiresAt)

	owned, ok, err := e.index.OwnedBy(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, decided.CredentialKey, owned)

	e.drain(t)
	assert.Equal(t, []models.NotificationKind{models.NotificationApproval, models.NotificationCredential}, e.sender.kinds())

	report, err := e.check.Execute(ctx, &checkcapacity.Input{OfferingRef: "fablab-monthly"})
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, int64(1), report.Enrolled)

	advanced, err := e.advance.Execute(ctx, &advanceapplication.Input{ApplicationID: id, Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "completed", advanced.Status)
	assert.True(t, advanced.CredentialKept)

	_, err = e.decide.Execute(ctx, &decideapplication.Input{ApplicationID: id, Outcome: models.OutcomeReject, Actor: "admin-2", Notes: "late"})
	assert.ErrorIs(t, err, errors.ErrAlreadyDecided)
}

func TestE2E_UniversityNeedsNoPaymentOrCredential(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	out, err := e.submit.Execute(ctx, &submitapplication.Input{Submission: models.Submission{
		Category:    models.CategoryUniversity,
		Applicant:   models.Applicant{Name: "Amina Diallo", Email: "amina@example.org"},
		OfferingRef: "licence-informatique",
		Documents:   []models.Document{{Name: "transcript", Kind: "pdf"}},
	}})
	require.NoError(t, err)

	reviewed, err := e.review.Execute(ctx, &reviewdocument.Input{
		ApplicationID: out.ApplicationID,
		Document:      "transcript",
		State:         models.DocumentValid,
		Actor:         "registrar",
	})
	require.NoError(t, err)
	assert.True(t, reviewed.AllValid)

	decided, err := e.decide.Execute(ctx, &decideapplication.Input{ApplicationID: out.ApplicationID, Outcome: models.OutcomeApprove, Actor: "admin-1"})
	require.NoError(t, err)
	assert.Empty(t, decided.CredentialKey)

	e.drain(t)
	assert.Equal(t, []models.NotificationKind{models.NotificationApproval}, e.sender.kinds())
}

func TestE2E_CapacityCapHoldsAcrossApprovals(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	limit := int64(1)
	require.NoError(t, e.engine.SetCapacity(ctx, "fablab-yearly", &limit))

	first := e.submitFabLab(t, "awa", "yearly")
	second := e.submitFabLab(t, "ibou", "yearly")

	_, err := e.approve(t, first)
	require.NoError(t, err)

	_, err = e.approve(t, second)
	assert.ErrorIs(t, err, errors.ErrCapacityExceeded)

	// reverting the first frees its seat for the second
	reverted, err := e.revert.Execute(ctx, &revertapplication.Input{ApplicationID: first, Actor: "dean", Reason: "duplicate account"})
	require.NoError(t, err)
	assert.Equal(t, "rejected", reverted.Status)
	assert.Zero(t, reverted.PendingEffects)

	_, ok, err := e.index.OwnedBy(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok)

	decided, err := e.decide.Execute(ctx, &decideapplication.Input{ApplicationID: second, Outcome: models.OutcomeApprove, Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "approved", decided.Status)

	report, err := e.check.Execute(ctx, &checkcapacity.Input{OfferingRef: "fablab-yearly"})
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, int64(1), report.Enrolled)
}

func TestE2E_SideEffectsRecoverAfterQueueOutage(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	id := e.submitFabLab(t, "moussa", "quarterly")
	_, err := e.verify.Execute(ctx, &verifypayment.Input{ApplicationID: id, Actor: "cashier"})
	require.NoError(t, err)

	e.queueRedis.SetError("ERR queue unavailable")
	decided, err := e.decide.Execute(ctx, &decideapplication.Input{ApplicationID: id, Outcome: models.OutcomeApprove, Actor: "admin-1"})
	require.NoError(t, err, "the transition commits even when its effects cannot run")
	assert.Equal(t, "approved", decided.Status)
	assert.NotZero(t, decided.PendingEffects)

	sweep, err := e.replay.Execute(ctx, &replaysideeffects.Input{})
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Failed)
	assert.Equal(t, []string{id}, sweep.FailedIDs)

	e.queueRedis.SetError("")
	sweep, err = e.replay.Execute(ctx, &replaysideeffects.Input{})
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Completed)
	assert.Zero(t, sweep.Remaining)

	assert.NotEmpty(t, decided.CredentialKey, "effects ahead of the failed one still ran")

	e.drain(t)
	assert.Equal(t, []models.NotificationKind{models.NotificationApproval, models.NotificationCredential}, e.sender.kinds())

	report, err := e.check.Execute(ctx, &checkcapacity.Input{OfferingRef: "fablab-quarterly"})
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestE2E_ResendIsDeliveredAgain(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	id := e.submitFabLab(t, "khady", "monthly")
	_, err := e.approve(t, id)
	require.NoError(t, err)
	e.drain(t)

	out, err := e.resend.Execute(ctx, &resendnotification.Input{ApplicationID: id, Kind: models.NotificationCredential, Actor: "support"})
	require.NoError(t, err)
	assert.True(t, out.Queued)

	e.drain(t)
	kinds := e.sender.kinds()
	require.Len(t, kinds, 3)
	assert.Equal(t, models.NotificationCredential, kinds[2])
	assert.True(t, e.sender.sent[2].Resend)
}
