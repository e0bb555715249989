package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/api"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/broker"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/config"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/database"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/jobs"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/logger"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/metrics"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/notify"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/storage"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/validation"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.Environment)
	if envErr != nil {
		log.Debug().Err(envErr).Msg(".env file not loaded")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("pipeline stopped with error")
	}
	log.Info().Msg("Server shutdown complete")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	backend, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	blobs := storage.NewStorageService(backend, cfg.StorageTimeout, log)

	// Connect to database
	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.LogLevel, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Broker: un canal pour publier, un autre pour consommer
	conn, err := broker.Dial(ctx, cfg.Broker.URL, cfg.Broker.DialAttempts, cfg.Broker.DialDelay, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	rawPubCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open publish channel: %w", err)
	}
	pubCh, err := broker.NewConfirmedChannel(rawPubCh)
	if err != nil {
		return err
	}
	queues := broker.Queues{
		GenerateContent: cfg.Broker.GenerateContentQueue,
		CreateProduct:   cfg.Broker.CreateProductQueue,
		Progress:        cfg.Broker.ProgressQueue,
	}
	publisher, err := broker.NewPublisher(pubCh, queues, cfg.Broker.PublishTimeout, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics := metrics.NewPipeline(reg)

	// Notifications
	hub := notify.NewHub(cfg.NotifyBuffer, log)
	hub.OnDrop(pipelineMetrics.NotificationFailed)

	var (
		notifier    jobs.Notifier = hub
		relay       *notify.Relay
		redisClient *redis.Client
	)
	checks := map[string]api.HealthCheck{"database": db.Ping}
	checks["broker"] = func(context.Context) error {
		if conn.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	}
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		notifier = notify.NewRedisGateway(redisClient, log)
		relay = notify.NewRelay(redisClient, hub, log)
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	// Initialize services
	deps := jobs.Dependencies{
		Store:          jobs.NewGormStore(db.DB),
		Blobs:          blobs,
		Publisher:      publisher,
		Notifier:       notifier,
		Metrics:        pipelineMetrics,
		Logger:         log,
		PublishTimeout: cfg.Broker.PublishTimeout,
		NotifyTimeout:  cfg.NotifyTimeout,
	}
	jobService := jobs.NewJobService(deps)

	consumeCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consume channel: %w", err)
	}
	consumer, err := broker.NewProgressConsumer(consumeCh, broker.ConsumerConfig{
		Queue:         cfg.Broker.ProgressQueue,
		MaxRetries:    cfg.Broker.MaxRetries,
		Workers:       cfg.Broker.ConsumerWorkers,
		HandleTimeout: cfg.Broker.HandleTimeout,
	}, jobService, publisher, pipelineMetrics, log)
	if err != nil {
		return err
	}

	// Reconciliation sweep
	reconciler := jobs.NewReconciler(deps, jobs.ReconcileConfig{
		StaleAfter:  cfg.Reconcile.StaleAfter,
		MaxAttempts: cfg.Reconcile.MaxAttempts,
		BatchSize:   cfg.Reconcile.BatchSize,
	})
	scheduler := cron.New()
	if err := reconciler.Schedule(ctx, scheduler, cfg.Reconcile.Schedule); err != nil {
		return err
	}

	validationConfig := validation.DefaultValidationConfig()
	validationConfig.MaxFiles = cfg.MaxFiles
	validationConfig.MaxTotalSize = cfg.MaxUploadBytes

	router := api.SetupRouter(api.RouterConfig{
		JobService:     jobService,
		Hub:            hub,
		Validator:      validation.NewAPIValidator(validationConfig),
		Logger:         log,
		JWTSecret:      cfg.JWTSecret,
		WorkerToken:    cfg.WorkerToken,
		MaxUploadBytes: cfg.MaxUploadBytes + 1<<20, // marge pour l'enveloppe multipart
		Checks:         checks,
		ConsumerStats:  consumer.Stats,
		Gatherer:       reg,
		Environment:    cfg.Environment,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("port", cfg.Port).
		Str("storage", cfg.Storage.Type).
		Str("progress_queue", cfg.Broker.ProgressQueue).
		Bool("redis", redisClient != nil).
		Msg("Starting eduva AI pipeline")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	scheduler.Start()

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")

		// Graceful shutdown
		<-scheduler.Stop().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
