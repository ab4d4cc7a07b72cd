// cmd/admission-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"admissions-engine/internal/capacity"
	awsclients "admissions-engine/internal/common/aws"
	"admissions-engine/internal/common/camunda"
	"admissions-engine/internal/common/clock"
	"admissions-engine/internal/common/config"
	"admissions-engine/internal/common/database"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/common/observability"
	"admissions-engine/internal/common/validation"
	"admissions-engine/internal/credential"
	"admissions-engine/internal/lifecycle"
	"admissions-engine/internal/notification"
	"admissions-engine/internal/search"
	"admissions-engine/internal/store"

	// Lifecycle workers
	adv "admissions-engine/internal/workers/application/advance-application"
	dec "admissions-engine/internal/workers/application/decide-application"
	rev "admissions-engine/internal/workers/application/revert-application"
	rvd "admissions-engine/internal/workers/application/review-document"
	sub "admissions-engine/internal/workers/application/submit-application"
	vp "admissions-engine/internal/workers/application/verify-payment"

	// Side effect workers
	iac "admissions-engine/internal/workers/application/issue-access-credential"
	rse "admissions-engine/internal/workers/application/replay-side-effects"
	rn "admissions-engine/internal/workers/application/resend-notification"
	rac "admissions-engine/internal/workers/application/revoke-access-credential"

	// Maintenance workers
	cc "admissions-engine/internal/workers/application/check-capacity"
)

const sweepBatchSize = 100

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting admission manager...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("otel metrics disabled", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientFromConfig(cfg.Camunda)
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	records := store.NewPostgresStore(pg.DB, log)
	if cfg.Database.Postgres.AutoMigrate {
		if err := records.Migrate(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		zapLog.Info("Application schema migrated")
	}

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	prefix := redis.Prefix()
	ledger := capacity.NewRedisLedger(redis.Client, prefix)
	keyIndex := credential.NewRedisKeyIndex(redis.Client, prefix)
	hostname, _ := os.Hostname()
	queue := notification.NewRedisQueue(redis.Client, cfg.Notifications.Queue.Key, cfg.Notifications.Queue.DeadLetterKey).
		WithConsumer(hostname)
	deduper := notification.NewRedisDeduper(redis.Client, prefix, config.GetDuration(cfg.Notifications.Queue.DedupeTTL))

	// --- Engine ---
	validator, err := validation.NewSubmissionValidator()
	if err != nil {
		zapLog.Fatal("submission schema failed to compile", zap.Error(err))
	}

	clk := clock.Real()
	issuer := credential.NewIssuer(keyIndex, clk, log,
		credential.WithKeyLength(cfg.Lifecycle.CredentialKeyLength),
		credential.WithMaxAttempts(cfg.Lifecycle.CredentialMaxAttempts),
	)

	engineOpts := lifecycle.Options{
		Store:         records,
		Ledger:        ledger,
		Issuer:        issuer,
		Dispatcher:    queue,
		Validator:     validator,
		Clock:         clk,
		Logger:        log,
		EffectTimeout: config.GetDuration(cfg.Lifecycle.EffectTimeout),
	}
	if obs != nil {
		engineOpts.Tracer = obs.Tracer()
	}
	engine, err := lifecycle.New(engineOpts)
	if err != nil {
		zapLog.Fatal("lifecycle engine init failed", zap.Error(err))
	}

	for ref, limit := range cfg.Lifecycle.CapacityCaps {
		limit := limit
		if err := engine.SetCapacity(ctx, ref, &limit); err != nil {
			zapLog.Fatal("failed to apply capacity cap", zap.String("offeringRef", ref), zap.Error(err))
		}
	}

	// --- Init Elasticsearch with retry ---
	if cfg.Search.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}

		indexer := search.NewIndexer(esClient.Client, cfg.Search.Index, log)
		if err := indexer.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("failed to prepare search index", zap.Error(err))
		}
		go indexer.Run(ctx)
		unsubscribe := engine.OnTransition(indexer.HandleTransition)
		defer unsubscribe()
		zapLog.Info("Search indexing enabled", zap.String("index", cfg.Search.Index))
	}

	// --- Notification delivery ---
	var sesClient notification.SESService
	var snsClient notification.SNSService
	emailEnabled := cfg.Notifications.Email.Enabled && cfg.Integrations.AWS.SES.Enabled
	smsEnabled := cfg.Notifications.SMS.Enabled && cfg.Integrations.AWS.SNS.Enabled
	if emailEnabled || smsEnabled {
		awsCfg, err := awsclients.LoadConfig(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws client init failed", zap.Error(err))
		}
		if emailEnabled {
			sesClient = awsclients.NewSESClient(awsCfg)
		}
		if smsEnabled {
			snsClient = awsclients.NewSNSClient(awsCfg)
		}
	}

	fromEmail := cfg.Notifications.Email.FromEmail
	if fromEmail == "" {
		fromEmail = cfg.Integrations.AWS.SES.FromEmail
	}
	sender := notification.NewAWSSender(notification.AWSSenderConfig{
		EmailEnabled: emailEnabled,
		SMSEnabled:   smsEnabled,
		FromEmail:    fromEmail,
	}, sesClient, snsClient, log)

	relay := notification.NewRelay(queue, sender, deduper, notification.RelayConfig{
		MaxAttempts: cfg.Notifications.Queue.MaxAttempts,
		PollTimeout: config.GetDuration(cfg.Notifications.Queue.PollTimeout),
		RetryDelay:  time.Second,
	}, log)
	go relay.Run(ctx)

	sweeper := lifecycle.NewSweeper(engine, config.GetDuration(cfg.Lifecycle.SweepInterval), sweepBatchSize, log)
	go sweeper.Run(ctx)

	// --- Register Workers ---
	workers, err := buildWorkers(cfg, zeebe, log, obs, engine)
	if err != nil {
		zapLog.Fatal("worker init failed", zap.Error(err))
	}
	for _, w := range workers {
		if err := w.Register(); err != nil {
			zapLog.Fatal("worker registration failed", zap.String("taskType", w.GetTaskType()), zap.Error(err))
		}
	}
	zapLog.Info("All workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           healthMux(pg, redis, zeebe),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if obs != nil {
		if err := obs.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("Error flushing metrics", zap.Error(err))
		}
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Admission manager stopped")
}

func buildWorkers(cfg *config.Config, zeebe *camunda.Client, log logger.Logger, obs *observability.Observability, engine *lifecycle.Engine) ([]camunda.Worker, error) {
	var workers []camunda.Worker
	add := func(w camunda.Worker, err error) error {
		if err != nil {
			return err
		}
		workers = append(workers, w)
		return nil
	}

	steps := []func() error{
		func() error {
			return add(sub.NewHandler(sub.HandlerOptions{AppConfig: cfg, Camunda: zeebe, Logger: log, Observability: obs, Service: engine}))
		},
		func() error {
			return add(vp.NewHandler(vp.HandlerOptions{AppConfig: cfg, Camunda: zeebe, Logger: log, Observability: obs, Service: engine}))
		},
		func() error {
			return add(rvd.NewHandler(rvd.HandlerOptions{AppConfig: cfg, Camunda: zeebe, Logger: log, Observability: obs, Service: engine}))
		},
		func() error {
			return add(dec.NewHandler(dec.HandlerOptions{AppConfig: cfg, Camunda: zeebe, Logger: log, Observability: obs, Service: engine}))
		},
		func() error {
			return add(adv.NewHandler(adv.HandlerOptions{AppConfig: cfg, Camunda: zeebe, Logger: log, Observability: obs, Service: engine}))
		},
		func() error {
			return add(rev.NewHandler(rev.HandlerOptions{AppConfig: cfg, Camunda: zeebe, Logger: log, Observability: obs, Service: engine}))
		},
		func() error {
			return add(iac.NewHandler(iac.HandlerOptions{AppConfig: cfg, Camunda: zeebe, Logger: log, Observability: obs, Service: engine}))
		},
		func() error {
			return add(rac.NewHandler(rac.HandlerOptions{AppConfig: cfg, Camunda: zeebe, Logger: log, Observability: obs, Service: engine}))
		},
		func() error {
			return add(rn.NewHandler(rn.HandlerOptions{AppConfig: cfg, Camunda: zeebe, Logger: log, Observability: obs, Service: engine}))
		},
		func() error {
			return add(rse.NewHandler(rse.HandlerOptions{AppConfig: cfg, Camunda: zeebe, Logger: log, Observability: obs, Service: engine}))
		},
		func() error {
			return add(cc.NewHandler(cc.HandlerOptions{AppConfig: cfg, Camunda: zeebe, Logger: log, Observability: obs, Service: engine}))
		},
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return workers, nil
}

func healthMux(pg *database.PostgresClient, redis *database.RedisClient, zeebe *camunda.Client) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := pg.Stats()
		checks["postgres"], checks["redis"], checks["zeebe"] = "ok", "ok", "ok"
		status := http.StatusOK
		if err := pg.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := redis.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := zeebe.HealthCheck(ctx); err != nil {
			checks["zeebe"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		writeStatus(w, status, checks)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
