package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/SignFlow/app/controllers"
	"github.com/ManuelReschke/SignFlow/app/repository"
	apiv1 "github.com/ManuelReschke/SignFlow/internal/api/v1"
	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
	"github.com/ManuelReschke/SignFlow/internal/pkg/cache"
	"github.com/ManuelReschke/SignFlow/internal/pkg/database"
	"github.com/ManuelReschke/SignFlow/internal/pkg/env"
	"github.com/ManuelReschke/SignFlow/internal/pkg/health"
	"github.com/ManuelReschke/SignFlow/internal/pkg/jobqueue"
	"github.com/ManuelReschke/SignFlow/internal/pkg/objectstore"
	"github.com/ManuelReschke/SignFlow/internal/pkg/packager"
	"github.com/ManuelReschke/SignFlow/internal/pkg/provider"
	"github.com/ManuelReschke/SignFlow/internal/pkg/router"
	"github.com/ManuelReschke/SignFlow/internal/pkg/signature"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app, manager := NewApplication()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if manager != nil {
		manager.Start()
	}

	go func() {
		<-ctx.Done()
		log.Info("[SignFlow] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Errorf("[SignFlow] HTTP shutdown failed: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Errorf("[SignFlow] Server stopped: %v", err)
	}

	if manager != nil {
		manager.Stop()
	}
}

// NewApplication wires storage, vendors, the task queue and the HTTP surface.
// The returned manager is nil when the job queue is disabled.
func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	basePath := findBasePath()
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := newObjectStore(ctx)
	if err != nil {
		panic(err)
	}

	registry := provider.NewRegistry(provider.LoadConfig().Gateways()...)
	service := signature.NewService(
		repository.NewSignatureEventRepository(database.GetDB()),
		packager.New(store),
		registry,
		signature.LoadConfig(),
		signature.WithMetrics(signature.NewMetrics(reg)),
	)

	queueCfg := jobqueue.LoadConfig()
	queue := jobqueue.NewQueue(cache.GetClient(), queueCfg,
		jobqueue.WithRetryable(apperrors.Retryable),
		jobqueue.WithMetrics(jobqueue.NewMetrics(reg)),
	)

	handler := signature.NewTaskHandler(service, queue)
	queue.Handle(jobqueue.JobTypeSendSignature, jobqueue.EventHandler(handler.HandleSend))
	queue.Handle(jobqueue.JobTypeCheckSignatureStatus, jobqueue.EventHandler(handler.HandleCheckStatus))
	queue.Handle(jobqueue.JobTypeUploadSignedDocuments, jobqueue.EventHandler(handler.HandleUpload))

	reconciler := signature.NewReconciler(service, queue)

	var manager *jobqueue.Manager
	if env.GetEnvBool("JOB_QUEUE_ENABLED", true) {
		manager = jobqueue.NewManager(queue, func(ctx context.Context) error {
			_, err := reconciler.Run(ctx)
			return err
		}, queueCfg.SweepInterval)
	} else {
		log.Warn("[SignFlow] Job queue disabled, tasks are only processed via the internal endpoints")
	}

	specPath := basePath + "public/docs/v1/openapi.yml"
	if _, err := apiv1.LoadSpec(ctx, specPath); err != nil {
		log.Warnf("[SignFlow] OpenAPI document is invalid: %v", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: env.GetEnvInt("APP_BODY_LIMIT", 50*1024*1024),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: specPath,
		Path:     "v1",
	}))

	// ROUTER
	events := controllers.NewSignatureEventController(service, queue)
	tasks := controllers.NewTaskController(handler, reconciler, service, queue,
		jobqueue.NewSweepLock(cache.GetClient(), queueCfg.SweepInterval))
	metrics := adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	checker := health.NewChecker(env.GetEnvDuration("HEALTH_CHECK_TIMEOUT", 2*time.Second)).
		Register("database", health.DatabaseCheck(database.GetDB())).
		Register("redis", health.RedisCheck(cache.GetClient()))

	router.InstallRouter(app,
		router.NewHealthRouter(checker),
		router.NewApiRouter(apiv1.NewAPIServer(events), router.NewLimiterStorage(),
			env.GetEnvInt("RATE_LIMIT_MAX", 60), env.GetEnvDuration("RATE_LIMIT_WINDOW", time.Minute)),
		router.NewInternalRouter(tasks, metrics,
			env.GetEnv("TASKS_USERNAME", "tasks"), env.GetEnv("TASKS_PASSWORD_HASH", "")),
	)

	return app, manager
}

// newObjectStore returns the S3 bucket, or an in-memory store when STORAGE_DRIVER=memory.
func newObjectStore(ctx context.Context) (packager.ObjectStore, error) {
	if env.GetEnv("STORAGE_DRIVER", "s3") == "memory" {
		log.Warn("[SignFlow] Using in-memory document storage")
		return packager.NewMemoryStore(env.GetEnv("S3_BUCKET_NAME", "signflow-documents")), nil
	}

	cfg, err := objectstore.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}
	client, err := objectstore.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func findBasePath() string {
	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/signflow to project root
		"../../../", // Fallback
	}

	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs"); !os.IsNotExist(err) {
			return path
		}
	}
	panic("Could not find project root directory")
}
