package production

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/embalage-erp/embalage-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for production batches.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/batches", func(r chi.Router) {
		r.Post("/", h.handleCreateBatch)
		r.Get("/{id}", h.handleGetBatch)
		r.Post("/{id}/advance", h.handleAdvance)
		r.Post("/{id}/reset", h.handleReset)
		r.Get("/{id}/history", h.handleHistory)
	})
}

type createBatchRequest struct {
	ClientOrderID   int64  `json:"client_order_id" validate:"required,gt=0"`
	BatchCode       string `json:"batch_code,omitempty"`
	PlannedQuantity int    `json:"planned_quantity" validate:"required,gt=0"`
	Notes           string `json:"notes,omitempty"`
}

type advanceRequest struct {
	To       string `json:"to" validate:"required"`
	Quantity int    `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	Note     string `json:"note,omitempty"`
}

type resetRequest struct {
	Note string `json:"note,omitempty"`
}

type batchResponse struct {
	ID               int64  `json:"id"`
	ClientOrderID    int64  `json:"client_order_id"`
	BatchCode        string `json:"batch_code"`
	Stage            Stage  `json:"stage"`
	PlannedQuantity  int    `json:"planned_quantity"`
	QuantityProduced int    `json:"quantity_produced"`
	Notes            string `json:"notes,omitempty"`
	StartedAt        string `json:"started_at"`
	CompletedAt      string `json:"completed_at,omitempty"`
}

type stageEventResponse struct {
	FromStage Stage  `json:"from_stage"`
	ToStage   Stage  `json:"to_stage"`
	Quantity  int    `json:"quantity,omitempty"`
	Note      string `json:"note,omitempty"`
	MovedAt   string `json:"moved_at"`
}

func toBatchResponse(b Batch) batchResponse {
	resp := batchResponse{
		ID:               b.ID,
		ClientOrderID:    b.ClientOrderID,
		BatchCode:        b.BatchCode,
		Stage:            b.Stage,
		PlannedQuantity:  b.PlannedQuantity,
		QuantityProduced: b.QuantityProduced,
		Notes:            b.Notes,
		StartedAt:        b.StartedAt.Format(time.RFC3339),
	}
	if b.CompletedAt != nil {
		resp.CompletedAt = b.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	batch, err := h.service.CreateBatch(r.Context(), CreateBatchInput{
		ClientOrderID:   req.ClientOrderID,
		BatchCode:       req.BatchCode,
		PlannedQuantity: req.PlannedQuantity,
		Notes:           req.Notes,
	})
	if err != nil {
		h.logger.Error("create batch", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBatchResponse(batch))
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	var req advanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	batch, err := h.service.AdvanceStage(r.Context(), AdvanceInput{
		BatchID:  id,
		To:       Stage(req.To),
		Quantity: req.Quantity,
		Note:     req.Note,
	})
	if err != nil {
		h.logger.Error("advance batch", slog.Int64("batch", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	batch, err := h.service.ResetStage(r.Context(), id, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	events, err := h.service.StageHistory(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]stageEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, stageEventResponse{
			FromStage: e.FromStage,
			ToStage:   e.ToStage,
			Quantity:  e.Quantity,
			Note:      e.Note,
			MovedAt:   e.MovedAt.Format(time.RFC3339),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
