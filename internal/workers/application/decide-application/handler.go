// internal/workers/application/decide-application/handler.go
package decideapplication

import (
	"context"
	"fmt"

	"admissions-engine/internal/common/camunda"
	"admissions-engine/internal/common/config"
	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/common/observability"
	"admissions-engine/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "decide-application"

// Service is the slice of the lifecycle engine this worker drives.
type Service interface {
	Decide(ctx context.Context, id string, outcome models.Outcome, actor, notes string) (*models.ApplicationRecord, error)
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
	id, err := camunda.RequireString(vars, "applicationId")
	if err != nil {
		return nil, err
	}
	actor, err := camunda.RequireString(vars, "actor")
	if err != nil {
		return nil, err
	}

	outcome := models.Outcome(camunda.String(vars, "outcome"))
	if outcome != models.OutcomeApprove && outcome != models.OutcomeReject {
		return nil, errors.NewValidationError("outcome: must be one of approve, reject")
	}

	return &Input{
		ApplicationID: id,
		Outcome:       outcome,
		Actor:         actor,
		Notes:         camunda.String(vars, "notes"),
	}, nil
}

// Execute decides the application. A refused decision surfaces as a domain error so the process
// can route on it.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	rec, err := h.service.Decide(ctx, input.ApplicationID, input.Outcome, input.Actor, input.Notes)
	if err != nil {
		return nil, err
	}

	output := &Output{
		ApplicationID:  rec.ID,
		Status:         string(rec.Status),
		DecidedBy:      rec.DecidedBy,
		PendingEffects: len(rec.PendingEffects),
	}
	if rec.DecidedAt != nil {
		output.DecidedAt = *rec.DecidedAt
	}
	if rec.AccessCredential != nil {
		expires := rec.AccessCredential.ExpiresAt
		output.CredentialKey = rec.AccessCredential.Key
		output.CredentialExpiresAt = &expires
	}

	if output.PendingEffects > 0 {
		h.logger.Warn("Decision committed with side effects outstanding", map[string]interface{}{
			"applicationId":  rec.ID,
			"pendingEffects": output.PendingEffects,
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

func (h *Handler) GetConfig() *camunda.JobConfig {
	return h.config
}
