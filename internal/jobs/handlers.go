package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/embalage-erp/embalage-erp/internal/archive"
	"github.com/embalage-erp/embalage-erp/internal/observability"
)

// FulfillmentPort is the slice of the procurement service the reconcile job
// needs.
type FulfillmentPort interface {
	Reconcile(ctx context.Context) (int, error)
}

// ArchivePort is the slice of the archive service the integrity job needs.
type ArchivePort interface {
	List(ctx context.Context, kind archive.Kind) ([]archive.ArchivedTransaction, error)
}

// Handlers bundles the job implementations with their dependencies.
type Handlers struct {
	fulfillment FulfillmentPort
	archives    ArchivePort
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewHandlers constructs job handlers. metrics may be nil.
func NewHandlers(fulfillment FulfillmentPort, archives ArchivePort, metrics *observability.Metrics, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{fulfillment: fulfillment, archives: archives, metrics: metrics, logger: logger}
}

// HandleFulfillmentReconcile recomputes the stored delivery projections from
// the ledger.
func (h *Handlers) HandleFulfillmentReconcile(ctx context.Context, _ *asynq.Task) error {
	repaired, err := h.fulfillment.Reconcile(ctx)
	if h.metrics != nil {
		h.metrics.RecordOperation("fulfillment_reconcile", err)
	}
	if err != nil {
		h.logger.Error("fulfillment reconcile", slog.Any("error", err))
		return err
	}
	h.logger.Info("fulfillment reconcile done", slog.Int("repaired", repaired))
	return nil
}

// HandleArchiveIntegrity walks the archive and reports snapshots that no
// longer parse. A malformed snapshot cannot be restored, so it is worth an
// alarm long before anyone asks for it back.
func (h *Handlers) HandleArchiveIntegrity(ctx context.Context, _ *asynq.Task) error {
	archived, err := h.archives.List(ctx, "")
	if h.metrics != nil {
		h.metrics.RecordOperation("archive_integrity", err)
	}
	if err != nil {
		h.logger.Error("archive integrity", slog.Any("error", err))
		return err
	}
	malformed := 0
	for _, at := range archived {
		if !json.Valid(at.Snapshot) {
			malformed++
			h.logger.Error("malformed archive snapshot",
				slog.String("archive", at.ID.String()),
				slog.String("kind", string(at.Kind)),
				slog.String("reference", at.Reference))
		}
	}
	h.logger.Info("archive integrity done", slog.Int("checked", len(archived)), slog.Int("malformed", malformed))
	return nil
}
