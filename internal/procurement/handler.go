package procurement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/embalage-erp/embalage-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for supplier order fulfillment.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/supplier-orders", func(r chi.Router) {
		r.Post("/", h.handleCreateOrder)
		r.Get("/pending", h.handlePendingDeliveries)
		r.Get("/match", h.handleMatchLines)
		r.Get("/{id}", h.handleGetOrder)
		r.Post("/{id}/confirm", h.handleConfirmOrder)
		r.Post("/{id}/returns", h.handleRecordReturn)
		r.Get("/{id}/summary", h.handleSummary)
	})
	r.Route("/line-items/{id}", func(r chi.Router) {
		r.Post("/deliveries", h.handleRecordDelivery)
		r.Get("/deliveries", h.handleListDeliveries)
	})
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateOrderInput{
		SupplierID:    req.SupplierID,
		ClientOrderID: req.ClientOrderID,
		Reference:     req.Reference,
		OrderDate:     parseDate(req.OrderDate),
		Currency:      req.Currency,
		Notes:         req.Notes,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			ClientID:        line.ClientID,
			ArticleCode:     line.ArticleCode,
			CaisseLengthMM:  line.CaisseLengthMM,
			CaisseWidthMM:   line.CaisseWidthMM,
			CaisseHeightMM:  line.CaisseHeightMM,
			PlaqueWidthMM:   line.PlaqueWidthMM,
			PlaqueLengthMM:  line.PlaqueLengthMM,
			PlaqueFlapMM:    line.PlaqueFlapMM,
			UnitPrice:       line.UnitPrice,
			OrderedQuantity: line.OrderedQuantity,
		})
	}
	order, err := h.service.CreateSupplierOrder(r.Context(), input)
	if err != nil {
		h.logger.Error("create supplier order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	order, lines, err := h.service.GetOrder(r.Context(), order.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order, lines))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	order, lines, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order, lines))
}

func (h *Handler) handleConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	order, err := h.service.ConfirmOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order, nil))
}

func (h *Handler) handleRecordDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	var req recordDeliveryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	delivery, err := h.service.RecordDelivery(r.Context(), RecordDeliveryInput{
		LineItemID:     id,
		ReceivedQty:    req.ReceivedQty,
		DeliveryDate:   parseDate(req.DeliveryDate),
		BatchReference: req.BatchReference,
		QualityNotes:   req.QualityNotes,
	})
	if err != nil {
		h.logger.Error("record delivery", slog.Int64("line_item", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDeliveryResponse(delivery))
}

func (h *Handler) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	deliveries, err := h.service.LineDeliveries(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]deliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		resp = append(resp, toDeliveryResponse(d))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRecordReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	var req recordReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ret, err := h.service.RecordReturn(r.Context(), RecordReturnInput{
		SupplierOrderID: id,
		LineItemID:      req.LineItemID,
		Quantity:        req.Quantity,
		Reason:          req.Reason,
	})
	if err != nil {
		h.logger.Error("record return", slog.Int64("order", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReturnResponse(ret))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	summary, err := h.service.Summary(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handlePendingDeliveries(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.PendingDeliveries(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pending)
}

func (h *Handler) handleMatchLines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	width, _ := strconv.Atoi(q.Get("plaque_width_mm"))
	length, _ := strconv.Atoi(q.Get("plaque_length_mm"))
	flap, _ := strconv.Atoi(q.Get("plaque_flap_mm"))
	lines, err := h.service.MatchLineItems(r.Context(), width, length, flap)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]lineItemResponse, 0, len(lines))
	for _, line := range lines {
		resp = append(resp, toLineResponse(line))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
