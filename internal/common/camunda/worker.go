// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"fmt"
	"time"

	"admissions-engine/internal/common/config"
	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/common/metrics"
	"admissions-engine/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Worker is what the manager registers and shuts down.
type Worker interface {
	Register() error
	Close()
	GetTaskType() string
}

// JobConfig holds the settings every job worker shares.
type JobConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

func (c *JobConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	return nil
}

// ResolveJobConfig returns custom when given, otherwise defaults overlaid with workers.<taskType>
// from the application config.
func ResolveJobConfig(appConfig *config.Config, taskType string, custom *JobConfig, defaults JobConfig) *JobConfig {
	if custom != nil {
		return custom
	}

	cfg := defaults
	if appConfig != nil {
		if workerCfg, exists := appConfig.Workers[taskType]; exists {
			cfg.Enabled = workerCfg.Enabled
			if workerCfg.MaxJobsActive > 0 {
				cfg.MaxJobsActive = workerCfg.MaxJobsActive
			}
			if workerCfg.Timeout > 0 {
				cfg.Timeout = config.GetDuration(workerCfg.Timeout)
			}
		}
	}
	return &cfg
}

// JobFunc handles the variables of one job and returns the variables to complete it with.
type JobFunc func(ctx context.Context, vars map[string]interface{}) (map[string]interface{}, error)

// JobRunner carries the per-job plumbing shared by the admission workers: metrics, timeouts,
// completion and the mapping of errors onto job failures or BPMN errors.
type JobRunner struct {
	taskType     string
	config       *JobConfig
	camunda      *Client
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
	obs          *observability.Observability
	jobWorker    worker.JobWorker
}

type JobRunnerOptions struct {
	TaskType      string
	Config        *JobConfig
	Camunda       *Client
	Logger        logger.Logger
	Observability *observability.Observability
}

const commandTimeout = 10 * time.Second

func NewJobRunner(opts JobRunnerOptions) *JobRunner {
	return &JobRunner{
		taskType:     opts.TaskType,
		config:       opts.Config,
		camunda:      opts.Camunda,
		logger:       opts.Logger,
		errorHandler: errors.NewErrorHandler(opts.Logger),
		obs:          opts.Observability,
	}
}

// Run executes fn for job and completes or fails it.
func (r *JobRunner) Run(client worker.JobClient, job entities.Job, fn JobFunc) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(r.taskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(r.taskType).Dec()

	r.logger.Info("Processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"worker":             r.taskType,
	})

	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()

	output, err := r.execute(ctx, job, fn)

	// the job budget may be spent by now; completion gets its own
	sendCtx, sendCancel := context.WithTimeout(context.WithoutCancel(ctx), commandTimeout)
	defer sendCancel()

	if err != nil {
		code := string(errors.CodeOf(err))
		metrics.WorkerJobsFailed.WithLabelValues(r.taskType, code).Inc()
		r.obs.RecordJobProcessed(sendCtx, r.taskType, "failed")
		r.obs.RecordJobDuration(sendCtx, r.taskType, time.Since(startTime), "failed")
		r.errorHandler.HandleJobError(sendCtx, client, job, err)
		return
	}

	r.completeJob(sendCtx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(r.taskType).Observe(time.Since(startTime).Seconds())
	r.obs.RecordJobProcessed(sendCtx, r.taskType, "completed")
	r.obs.RecordJobDuration(sendCtx, r.taskType, time.Since(startTime), "completed")
}

func (r *JobRunner) execute(ctx context.Context, job entities.Job, fn JobFunc) (map[string]interface{}, error) {
	vars, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("job variables: %v", err))
	}
	return fn(ctx, vars)
}

func (r *JobRunner) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, variables map[string]interface{}) {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(variables)
	if err != nil {
		r.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": r.taskType,
		})
		return
	}

	if _, err := request.Send(ctx); err != nil {
		r.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": r.taskType,
		})
		return
	}

	r.logger.Info("Job completed", map[string]interface{}{
		"jobKey": job.GetKey(),
		"worker": r.taskType,
	})
}

// Register opens a job worker for handler. Disabled workers are skipped.
func (r *JobRunner) Register(handler worker.JobHandler) error {
	if !r.config.Enabled {
		r.logger.Info("Worker is disabled, skipping registration", map[string]interface{}{
			"worker": r.taskType,
		})
		return nil
	}
	if r.camunda == nil {
		return fmt.Errorf("%s: camunda client is required to register", r.taskType)
	}

	r.jobWorker = r.camunda.GetClient().NewJobWorker().
		JobType(r.taskType).
		Handler(handler).
		MaxJobsActive(r.config.MaxJobsActive).
		Timeout(r.config.Timeout).
		Name(fmt.Sprintf("%s-worker", r.taskType)).
		Open()

	r.logger.Info("Worker registered with Camunda", map[string]interface{}{
		"taskType":      r.taskType,
		"maxJobsActive": r.config.MaxJobsActive,
		"timeout":       r.config.Timeout.String(),
	})
	return nil
}

// Close stops polling and waits for in-flight jobs.
func (r *JobRunner) Close() {
	if r.jobWorker == nil {
		return
	}
	r.logger.Info("Shutting down worker gracefully", map[string]interface{}{
		"worker": r.taskType,
	})
	r.jobWorker.Close()
	r.jobWorker.AwaitClose()
	r.jobWorker = nil
}

func (r *JobRunner) Enabled() bool {
	return r.config.Enabled
}
