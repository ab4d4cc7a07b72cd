// Package lifecycle is the application state machine. It validates every requested transition
// against the stored record, commits the new state together with durable side-effect markers,
// and then runs those side effects (capacity, credential, notification) in order.
//
// A transition is successful once it is saved. Side effects that fail afterwards stay as markers
// on the record and are repaired by ReplayPendingEffects, never by re-running the transition.
package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"admissions-engine/internal/capacity"
	"admissions-engine/internal/common/clock"
	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/common/metrics"
	"admissions-engine/internal/models"
	"admissions-engine/internal/notification"
	"admissions-engine/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "admissions-engine/lifecycle"

// CredentialIssuer mints and releases access keys. Issue must return the key already reserved
// for ownerID when there is one.
type CredentialIssuer interface {
	Issue(ctx context.Context, ownerID string, plan models.Plan) (*models.Credential, error)
	Release(ctx context.Context, ownerID string) error
}

// SubmissionValidator rejects incomplete submissions with a VALIDATION_ERROR.
type SubmissionValidator interface {
	Validate(sub *models.Submission) error
}

// Options wires the engine's collaborators. Store, Ledger, Issuer, Dispatcher and Validator are required.
type Options struct {
	Store         store.Store
	Ledger        capacity.Ledger
	Issuer        CredentialIssuer
	Dispatcher    notification.Dispatcher
	Validator     SubmissionValidator
	Clock         clock.Clock
	Tracer        trace.Tracer
	Logger        logger.Logger
	EffectTimeout time.Duration
	NewID         func() string
}

type Engine struct {
	store         store.Store
	ledger        capacity.Ledger
	issuer        CredentialIssuer
	dispatcher    notification.Dispatcher
	validator     SubmissionValidator
	clock         clock.Clock
	tracer        trace.Tracer
	logger        logger.Logger
	effectTimeout time.Duration
	newID         func() string

	records   *keyedMutex
	offerings *keyedMutex

	listenersMu  sync.RWMutex
	listeners    map[uint64]func(models.TransitionEvent)
	nextListener uint64
}

func New(opts Options) (*Engine, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("lifecycle: store is required")
	case opts.Ledger == nil:
		return nil, fmt.Errorf("lifecycle: capacity ledger is required")
	case opts.Issuer == nil:
		return nil, fmt.Errorf("lifecycle: credential issuer is required")
	case opts.Dispatcher == nil:
		return nil, fmt.Errorf("lifecycle: notification dispatcher is required")
	case opts.Validator == nil:
		return nil, fmt.Errorf("lifecycle: submission validator is required")
	}

	e := &Engine{
		store:         opts.Store,
		ledger:        opts.Ledger,
		issuer:        opts.Issuer,
		dispatcher:    opts.Dispatcher,
		validator:     opts.Validator,
		clock:         opts.Clock,
		tracer:        opts.Tracer,
		logger:        opts.Logger,
		effectTimeout: opts.EffectTimeout,
		newID:         opts.NewID,
		records:       newKeyedMutex(),
		offerings:     newKeyedMutex(),
		listeners:     make(map[uint64]func(models.TransitionEvent)),
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.logger == nil {
		e.logger = logger.NewStructured("info", "json")
	}
	e.logger = e.logger.WithFields(map[string]interface{}{"component": "lifecycle-engine"})
	if e.effectTimeout <= 0 {
		e.effectTimeout = 10 * time.Second
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.NewString() }
	}
	return e, nil
}

// OnTransition registers fn for every committed transition. The returned func unsubscribes.
// Listeners run synchronously after the commit and receive their own copy of the record.
func (e *Engine) OnTransition(fn func(models.TransitionEvent)) func() {
	e.listenersMu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.listenersMu.Lock()
			delete(e.listeners, id)
			e.listenersMu.Unlock()
		})
	}
}

func (e *Engine) emit(rec *models.ApplicationRecord, from models.Status, action, actor string) {
	metrics.LifecycleTransitions.WithLabelValues(string(rec.Category), action, string(rec.Status)).Inc()

	e.listenersMu.RLock()
	fns := make([]func(models.TransitionEvent), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenersMu.RUnlock()

	for _, fn := range fns {
		e.notifyListener(fn, models.TransitionEvent{
			Record: rec.Clone(),
			From:   from,
			To:     rec.Status,
			Action: action,
			Actor:  actor,
			At:     rec.UpdatedAt,
		})
	}
}

func (e *Engine) notifyListener(fn func(models.TransitionEvent), ev models.TransitionEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("transition listener panicked", map[string]interface{}{
				"applicationId": ev.Record.ID,
				"action":        ev.Action,
				"panic":         fmt.Sprint(r),
			})
		}
	}()
	fn(ev)
}

// startSpan opens a span for one engine operation.
func (e *Engine) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(attrs...))
}

// finish records err on span and counts refused commands.
func (e *Engine) finish(span trace.Span, action string, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(errors.CodeOf(err)))
	if errors.IsDomainError(err) {
		metrics.LifecycleRejectedCommands.WithLabelValues(action, string(errors.CodeOf(err))).Inc()
	}
}

// load reads a record. Callers hold the record lock.
func (e *Engine) load(ctx context.Context, id string) (*models.ApplicationRecord, error) {
	rec, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, storeError("store.load", err)
	}
	return rec, nil
}

// commit saves rec. NOT_FOUND and VERSION_CONFLICT pass through unchanged.
func (e *Engine) commit(ctx context.Context, rec *models.ApplicationRecord) error {
	if err := e.store.Save(ctx, rec); err != nil {
		return storeError("store.save", err)
	}
	return nil
}

func storeError(op string, err error) error {
	var stdErr *errors.StandardError
	if stderrors.As(err, &stdErr) {
		return err
	}
	return errors.NewInfrastructureError(op, err)
}

func (e *Engine) marker(kind models.EffectKind, n models.NotificationKind) models.PendingEffect {
	return models.PendingEffect{
		ID:           e.newID(),
		Kind:         kind,
		Notification: n,
		CreatedAt:    e.clock.Now(),
	}
}
