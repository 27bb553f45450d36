package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

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

// orderCheck bridges production batch creation to the sales order registry.
// The sales service is assigned after construction because the two services
// reference each other through ports.
type orderCheck struct {
	sales *sales.Service
}

func (o *orderCheck) OrderExists(ctx context.Context, clientOrderID int64) (bool, error) {
	return o.sales.OrderExists(ctx, clientOrderID)
}

// renderQueue adapts the jobs client to the documents handler port.
type renderQueue struct {
	client *jobs.Client
}

func (q renderQueue) EnqueueRender(ctx context.Context, kind string, sourceID int64) error {
	_, err := q.client.EnqueueRenderDocument(ctx, jobs.RenderDocumentPayload{Kind: kind, SourceID: sourceID})
	return err
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		// summaries fall back to recomputing from the ledger
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

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Metrics:     metrics,
		Pool:        pool,
		Redis:       redisClient,
		Sales:       sales.NewHandler(logger, salesService),
		Procurement: procurement.NewHandler(logger, procurementService),
		Production:  production.NewHandler(logger, productionService),
		Archive:     archive.NewHandler(logger, archiveService),
		Masterdata:  masterdata.NewHandler(logger, directory),
		Documents:   documents.NewHandler(logger, renderQueue{client: jobsClient}),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
