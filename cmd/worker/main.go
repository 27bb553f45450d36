package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/embalage-erp/embalage-erp/internal/app"
	"github.com/embalage-erp/embalage-erp/internal/archive"
	"github.com/embalage-erp/embalage-erp/internal/documents"
	"github.com/embalage-erp/embalage-erp/internal/jobs"
	"github.com/embalage-erp/embalage-erp/internal/masterdata"
	"github.com/embalage-erp/embalage-erp/internal/observability"
	"github.com/embalage-erp/embalage-erp/internal/platform/cache"
	"github.com/embalage-erp/embalage-erp/internal/platform/db"
	"github.com/embalage-erp/embalage-erp/internal/procurement"
	"github.com/embalage-erp/embalage-erp/internal/production"
	"github.com/embalage-erp/embalage-erp/internal/refs"
	"github.com/embalage-erp/embalage-erp/internal/sales"
	"github.com/embalage-erp/embalage-erp/internal/shared"
)

type orderCheck struct {
	sales *sales.Service
}

func (o *orderCheck) OrderExists(ctx context.Context, clientOrderID int64) (bool, error) {
	return o.sales.OrderExists(ctx, clientOrderID)
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	references := refs.NewGenerator(refs.NewPGSequenceStore(pool))
	directory := masterdata.NewRepository(pool)

	summaryCache := cache.NewSummaryCache(redisClient, 5*time.Minute)
	procurementService := procurement.NewService(procurement.NewRepository(pool), directory, references, summaryCache, auditLogger, logger)

	orders := &orderCheck{}
	productionService := production.NewService(production.NewRepository(pool), orders, references, auditLogger, logger)
	salesService := sales.NewService(sales.NewRepository(pool), directory, references, productionService, auditLogger, logger)
	orders.sales = salesService

	archiveService := archive.NewService(archive.NewRepository(pool), auditLogger, logger)

	metrics := observability.NewMetrics()
	handlers := jobs.NewHandlers(procurementService, archiveService, metrics, logger)

	gotenberg := documents.NewClient(cfg.GotenbergURL)
	renderer := documents.NewRenderer(gotenberg, salesService, procurementService, directory, cfg.DocumentsDir, logger)
	renderHandlers := jobs.NewRenderHandlers(renderer, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskFulfillmentReconcile, Handler: handlers.HandleFulfillmentReconcile},
			{Type: jobs.TaskArchiveIntegrity, Handler: handlers.HandleArchiveIntegrity},
			{Type: jobs.TaskRenderDocument, Handler: renderHandlers.HandleRenderDocument},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: jobs.NewFulfillmentReconcileTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * 0", Task: jobs.NewArchiveIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
