package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// RendererPort is the slice of the document renderer the render job needs.
type RendererPort interface {
	RenderToFile(ctx context.Context, kind string, sourceID int64) (string, error)
}

// RenderHandlers owns the asynchronous PDF rendering.
type RenderHandlers struct {
	renderer RendererPort
	logger   *slog.Logger
}

// NewRenderHandlers constructs render job handlers.
func NewRenderHandlers(renderer RendererPort, logger *slog.Logger) *RenderHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderHandlers{renderer: renderer, logger: logger}
}

// HandleRenderDocument renders one document to PDF. A payload that does not
// parse is dropped; rendering failures retry.
func (h *RenderHandlers) HandleRenderDocument(ctx context.Context, t *asynq.Task) error {
	var payload RenderDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	path, err := h.renderer.RenderToFile(ctx, payload.Kind, payload.SourceID)
	if err != nil {
		h.logger.Error("render document",
			slog.String("kind", payload.Kind),
			slog.Int64("source", payload.SourceID),
			slog.Any("error", err))
		return err
	}
	h.logger.Info("document ready", slog.String("path", path))
	return nil
}
