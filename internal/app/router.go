package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/embalage-erp/embalage-erp/internal/archive"
	"github.com/embalage-erp/embalage-erp/internal/documents"
	"github.com/embalage-erp/embalage-erp/internal/masterdata"
	"github.com/embalage-erp/embalage-erp/internal/observability"
	"github.com/embalage-erp/embalage-erp/internal/platform/httpx"
	"github.com/embalage-erp/embalage-erp/internal/procurement"
	"github.com/embalage-erp/embalage-erp/internal/production"
	"github.com/embalage-erp/embalage-erp/internal/sales"
)

// RouterParams bundles the dependencies the HTTP router mounts.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	Pool  *pgxpool.Pool
	Redis *redis.Client

	Sales       *sales.Handler
	Procurement *procurement.Handler
	Production  *production.Handler
	Archive     *archive.Handler
	Masterdata  *masterdata.Handler
	Documents   *documents.Handler
}

// NewRouter assembles the chi router with middleware and all API routes.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	r.Use(MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config, Metrics: p.Metrics})...)

	r.Get("/healthz", healthHandler(p.Pool, p.Redis))
	r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		if p.Sales != nil {
			p.Sales.MountRoutes(api)
		}
		if p.Procurement != nil {
			p.Procurement.MountRoutes(api)
		}
		if p.Production != nil {
			p.Production.MountRoutes(api)
		}
		if p.Archive != nil {
			p.Archive.MountRoutes(api)
		}
		if p.Masterdata != nil {
			p.Masterdata.MountRoutes(api)
		}
		if p.Documents != nil {
			p.Documents.MountRoutes(api)
		}
	})

	return r
}

// healthHandler reports readiness of the backing stores.
func healthHandler(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok", "redis": "ok"}
		healthy := true
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				checks["postgres"] = err.Error()
				healthy = false
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httpx.JSON(w, status, map[string]any{"status": checks})
	}
}
