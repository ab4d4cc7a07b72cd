// internal/workers/application/advance-application/handler.go
package advanceapplication

import (
	"context"
	"fmt"

	"admissions-engine/internal/common/camunda"
	"admissions-engine/internal/common/config"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/common/observability"
	"admissions-engine/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "advance-application"

type Service interface {
	Advance(ctx context.Context, id, actor string) (*models.ApplicationRecord, error)
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
	return &Input{ApplicationID: id, Actor: camunda.String(vars, "actor")}, nil
}

// Execute completes an approved application. Completing twice is not an error, so a retried job
// after a lost completion still succeeds.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	rec, err := h.service.Advance(ctx, input.ApplicationID, input.Actor)
	if err != nil {
		return nil, err
	}
	return &Output{
		ApplicationID:  rec.ID,
		Status:         string(rec.Status),
		CredentialKept: rec.AccessCredential != nil,
	}, nil
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
