// internal/workers/application/issue-access-credential/handler.go
package issueaccesscredential

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

const TaskType = "issue-access-credential"

type Service interface {
	IssueCredential(ctx context.Context, id, actor string) (*models.Credential, error)
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

// Execute returns the record's credential, minting it if needed. The key is logged only by prefix.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	cred, err := h.service.IssueCredential(ctx, input.ApplicationID, input.Actor)
	if err != nil {
		return nil, err
	}

	h.logger.Info("Access credential available", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"keyPrefix":     keyPrefix(cred.Key),
		"expiresAt":     cred.ExpiresAt,
	})

	return &Output{
		ApplicationID: input.ApplicationID,
		Key:           cred.Key,
		Plan:          string(cred.Plan),
		IssuedAt:      cred.IssuedAt,
		ExpiresAt:     cred.ExpiresAt,
	}, nil
}

func keyPrefix(key string) string {
	if len(key) <= 2 {
		return "**"
	}
	return key[:2] + "******"
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
