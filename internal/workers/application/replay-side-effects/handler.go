// internal/workers/application/replay-side-effects/handler.go
package replaysideeffects

import (
	"context"
	"fmt"

	"admissions-engine/internal/common/camunda"
	"admissions-engine/internal/common/config"
	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/common/observability"
	"admissions-engine/internal/lifecycle"
	"admissions-engine/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "replay-side-effects"

type Service interface {
	ReplayPendingEffects(ctx context.Context, id string) (*models.ApplicationRecord, error)
	ReplayAll(ctx context.Context, limit int) (lifecycle.ReplayReport, error)
	RequeueParkedEffects(ctx context.Context, id, actor string) (*models.ApplicationRecord, error)
}

type Handler struct {
	config  *camunda.JobConfig
	logger  logger.Logger
	service Service
	runner  *camunda.JobRunner
}

type HandlerOptions struct {
	AppConfig     *config.Config
	Camunda       *camunda.Client
	CustomConfig  *camunda.JobConfig
	Logger        logger.Logger
	Observability *observability.Observability
	Service       Service
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := camunda.ResolveJobConfig(opts.AppConfig, TaskType, opts.CustomConfig, DefaultConfig())
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Service == nil {
		return nil, fmt.Errorf("%s: service is required", TaskType)
	}

	loggerInstance := opts.Logger
	if loggerInstance == nil {
		loggerInstance = logger.NewStructured("info", "json")
	}
	loggerInstance = loggerInstance.WithFields(map[string]interface{}{"taskType": TaskType})

	return &Handler{
		config:  workerConfig,
		logger:  loggerInstance,
		service: opts.Service,
		runner: camunda.NewJobRunner(camunda.JobRunnerOptions{
			TaskType:      TaskType,
			Config:        workerConfig,
			Camunda:       opts.Camunda,
			Logger:        loggerInstance,
			Observability: opts.Observability,
		}),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, func(ctx context.Context, vars map[string]interface{}) (map[string]interface{}, error) {
		input, err := parseInput(vars)
		if err != nil {
			return nil, err
		}
		output, err := h.Execute(ctx, input)
		if err != nil {
			return nil, err
		}
		return output.Variables(), nil
	})
}

func parseInput(vars map[string]interface{}) (*Input, error) {
	input := &Input{ApplicationID: camunda.String(vars, "applicationId")}

	limit, ok, err := camunda.Int(vars, "limit")
	if err != nil {
		return nil, err
	}
	if ok {
		if limit < 0 {
			return nil, errors.NewValidationError("limit: must not be negative")
		}
		input.Limit = int(limit)
	}

	if input.RequeueParked, err = camunda.Bool(vars, "requeueParked"); err != nil {
		return nil, err
	}
	if input.RequeueParked {
		if input.ApplicationID == "" {
			return nil, errors.NewValidationError("requeueParked: needs applicationId")
		}
		if input.Actor, err = camunda.RequireString(vars, "actor"); err != nil {
			return nil, err
		}
	}
	return input, nil
}

// Execute replays one record when an id is given, otherwise sweeps. Records that still carry
// markers afterwards are reported, not failed, so the process can decide whether to retry later.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ApplicationID != "" {
		return h.replayOne(ctx, input)
	}

	report, err := h.service.ReplayAll(ctx, input.Limit)
	if err != nil {
		return nil, err
	}

	output := &Output{
		Scanned:   report.Scanned,
		Completed: report.Completed,
		Failed:    report.Failed,
		FailedIDs: report.FailedIDs,
		Parked:    report.Parked,
		ParkedIDs: report.ParkedIDs,
		Remaining: report.Failed,
	}
	if output.Failed > 0 {
		h.logger.Warn("Replay sweep left records with pending effects", map[string]interface{}{
			"scanned": output.Scanned,
			"failed":  output.Failed,
		})
	}
	return output, nil
}

func (h *Handler) replayOne(ctx context.Context, input *Input) (*Output, error) {
	id := input.ApplicationID
	var (
		rec *models.ApplicationRecord
		err error
	)
	if input.RequeueParked {
		rec, err = h.service.RequeueParkedEffects(ctx, id, input.Actor)
	} else {
		rec, err = h.service.ReplayPendingEffects(ctx, id)
	}
	if err != nil && (rec == nil || !errors.IsRetryable(err)) {
		return nil, err
	}

	output := &Output{Scanned: 1, Remaining: len(rec.PendingEffects)}
	if output.Remaining == 0 {
		output.Completed = 1
	} else {
		output.Failed = 1
		output.FailedIDs = []string{id}
	}
	if len(rec.ParkedEffects) > 0 {
		output.Parked = 1
		output.ParkedIDs = []string{id}
		h.logger.Warn("Record holds parked side effects", map[string]interface{}{
			"applicationId": id,
			"parked":        len(rec.ParkedEffects),
		})
	}
	return output, nil
}

func (h *Handler) Register() error {
	return h.runner.Register(h.Handle)
}

func (h *Handler) Close() {
	h.runner.Close()
}

func (h *Handler) GetTaskType() string {
	return TaskType
}
