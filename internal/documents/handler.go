package documents

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/embalage-erp/embalage-erp/internal/platform/httpx"
)

// QueuePort submits rendering work to the background queue.
type QueuePort interface {
	EnqueueRender(ctx context.Context, kind string, sourceID int64) error
}

// Handler accepts rendering requests over HTTP and hands them to the queue.
type Handler struct {
	logger *slog.Logger
	queue  QueuePort
}

// NewHandler constructs the documents handler.
func NewHandler(logger *slog.Logger, queue QueuePort) *Handler {
	return &Handler{logger: logger, queue: queue}
}

// MountRoutes registers document rendering routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents/{kind}/{id}", h.handleEnqueueRender)
}

func (h *Handler) handleEnqueueRender(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	switch kind {
	case KindQuotation, KindClientOrder, KindPurchaseOrder, KindDeliveryNote, KindInvoice:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "unknown document kind "+kind)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be a positive integer")
		return
	}
	if err := h.queue.EnqueueRender(r.Context(), kind, id); err != nil {
		h.logger.Error("enqueue render", slog.String("kind", kind), slog.Int64("id", id), slog.String("error", err.Error()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"status": "queued", "kind": kind, "id": id})
}
