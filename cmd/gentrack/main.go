package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/client"
	"github.com/makeasinger/gentrack/internal/config"
	"github.com/makeasinger/gentrack/internal/crosstab"
	"github.com/makeasinger/gentrack/internal/handler"
	"github.com/makeasinger/gentrack/internal/logging"
	"github.com/makeasinger/gentrack/internal/middleware"
	"github.com/makeasinger/gentrack/internal/mirror"
	"github.com/makeasinger/gentrack/internal/notice"
	"github.com/makeasinger/gentrack/internal/server"
	"github.com/makeasinger/gentrack/internal/service"
	"github.com/makeasinger/gentrack/internal/storage"
	"github.com/makeasinger/gentrack/internal/tracker"
	"github.com/makeasinger/gentrack/internal/worker"
	ws "github.com/makeasinger/gentrack/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Server)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	agentID := uuid.New().String()
	logger = logger.With(zap.String("agent", agentID), zap.String("namespace", cfg.Storage.Namespace))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", zap.Error(err))
	}

	backend, err := openBackend(cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer backend.Close()

	workerClient := client.NewWorkerClient(&cfg.Worker, logger)

	registry := tracker.New(
		storage.NewJobStore(backend, cfg.Storage.Namespace, logger),
		client.NewCheckers(workerClient),
		tracker.OptionsFromConfig(cfg.Tracker),
		logger,
	)

	notifier := notice.New(backend, cfg.Storage.Namespace, logger)
	if err := notifier.Load(ctx); err != nil {
		logger.Fatal("failed to load notices", zap.Error(err))
	}

	var bus crosstab.Bus
	if cfg.CrossTab.Driver == "local" {
		bus = crosstab.NewLocalBus()
	} else {
		bus = crosstab.NewRedisBus(redisClient, cfg.Storage.Namespace+":"+cfg.CrossTab.Channel, logger)
	}
	coordinator := crosstab.NewCoordinator(bus, agentID, cfg.Tracker.HardTimeout, logger)

	hub := ws.NewHub(logger)

	registry.AddListener(notifier)
	registry.AddListener(coordinator)
	registry.AddListener(hub)
	registry.SetRemote(coordinator)

	// Artifact mirror (optional - continues if not configured)
	var artifactMirror *mirror.Mirror
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			logger.Warn("R2 client not initialized", zap.Error(err))
		} else {
			artifactMirror = mirror.New(r2Client, logger)
			registry.AddListener(artifactMirror)
		}
	} else {
		logger.Info("R2 storage not configured, artifacts are not mirrored")
	}

	if err := registry.Load(ctx); err != nil {
		logger.Fatal("failed to restore jobs", zap.Error(err))
	}

	go hub.Run(ctx)
	go func() {
		if err := coordinator.Run(ctx); err != nil {
			logger.Warn("cross-agent signal unavailable", zap.Error(err))
		}
	}()
	go registry.Run(ctx)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	queue := service.AgentQueue(cfg.Submit.Queue, agentID)
	svc := service.NewGenerationService(registry, notifier, coordinator, asynqClient, queue, cfg.Submit.MaxRetry, logger)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		runWorkerServer(ctx, cfg, workerClient, svc, logger)
	}()

	validate := validator.New()

	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
	}

	app := server.New(server.Deps{
		Generations:     handler.NewGenerationHandler(svc, validate, cfg.Tracker.MaxConcurrent),
		Notices:         handler.NewNoticeHandler(svc),
		Hub:             hub,
		RateLimiter:     middleware.NewRateLimiter(redisClient, logger),
		RegisterPerHour: cfg.RateLimit.RegisterPerHour,
		LogFormat:       logFormat,
		Health: fiber.Map{
			"storage":  cfg.Storage.Driver,
			"crosstab": cfg.CrossTab.Driver,
			"worker":   workerClient.IsConfigured(),
			"mirror":   artifactMirror != nil,
		},
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Warn("server shutdown error", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Server.Port
	logger.Info("server starting", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.Error("server error", zap.Error(err))
		stop()
	}

	<-workerDone
	if artifactMirror != nil {
		artifactMirror.Wait()
	}
}

func openBackend(cfg *config.Config, redisClient *redis.Client) (storage.Backend, error) {
	switch cfg.Storage.Driver {
	case "badger":
		return storage.OpenBadger(cfg.Storage.BadgerPath)
	case "memory":
		return storage.NewMemoryBackend(), nil
	default:
		return storage.NewRedisBackend(redisClient), nil
	}
}

func runWorkerServer(ctx context.Context, cfg *config.Config, workerClient *client.WorkerClient, svc *service.GenerationService, logger *zap.Logger) {
	asynqLogLevel := asynq.InfoLevel
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		asynqLogLevel = asynq.DebugLevel
	case "warn":
		asynqLogLevel = asynq.WarnLevel
	case "error":
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				svc.Queue(): 1,
			},
			LogLevel: asynqLogLevel,
			Logger:   logger.Named("asynq").Sugar(),
		},
	)

	submitWorker := worker.NewSubmitWorker(workerClient, svc, logger)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeSubmit, submitWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		logger.Warn("asynq worker not started", zap.Error(err))
		return
	}
	<-ctx.Done()
	srv.Shutdown()
}

