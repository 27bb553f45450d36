package sales

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/embalage-erp/embalage-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for quotations and client orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotations", func(r chi.Router) {
		r.Post("/", h.handleCreateQuotation)
		r.Get("/{id}", h.handleGetQuotation)
		r.Put("/{id}", h.handleUpdateQuotation)
		r.Post("/{id}/revise", h.handleReviseQuotation)
		r.Post("/{id}/convert", h.handleConvert)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.handleListOrders)
		r.Get("/{id}", h.handleGetOrder)
	})
	r.Get("/clients/{id}/quotations", h.handleClientQuotations)
}

type quotationRequest struct {
	ClientID   int64                  `json:"client_id" validate:"required,gt=0"`
	IsInitial  bool                   `json:"is_initial,omitempty"`
	IssueDate  string                 `json:"issue_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ValidUntil string                 `json:"valid_until,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Currency   string                 `json:"currency,omitempty" validate:"omitempty,len=3"`
	Notes      string                 `json:"notes,omitempty"`
	Lines      []quotationLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type quotationLineRequest struct {
	Description    string `json:"description,omitempty"`
	CaisseLengthMM int    `json:"caisse_length_mm,omitempty" validate:"omitempty,gt=0"`
	CaisseWidthMM  int    `json:"caisse_width_mm,omitempty" validate:"omitempty,gt=0"`
	CaisseHeightMM int    `json:"caisse_height_mm,omitempty" validate:"omitempty,gt=0"`
	CardboardType  string `json:"cardboard_type,omitempty"`
	PrintColors    int    `json:"print_colors,omitempty" validate:"omitempty,gte=0,lte=6"`
	Quantity       string `json:"quantity,omitempty"`
	UnitPrice      string `json:"unit_price,omitempty"`
}

type quotationResponse struct {
	ID            int64                   `json:"id"`
	Reference     string                  `json:"reference"`
	ClientID      int64                   `json:"client_id"`
	Status        QuotationStatus         `json:"status"`
	IsInitial     bool                    `json:"is_initial"`
	PredecessorID int64                   `json:"predecessor_id,omitempty"`
	IssueDate     string                  `json:"issue_date"`
	ValidUntil    string                  `json:"valid_until,omitempty"`
	Currency      string                  `json:"currency"`
	Notes         string                  `json:"notes,omitempty"`
	Total         string                  `json:"total"`
	Lines         []quotationLineResponse `json:"lines,omitempty"`
}

type quotationLineResponse struct {
	LineNumber      int    `json:"line_number"`
	Description     string `json:"description,omitempty"`
	CaisseLengthMM  int    `json:"caisse_length_mm,omitempty"`
	CaisseWidthMM   int    `json:"caisse_width_mm,omitempty"`
	CaisseHeightMM  int    `json:"caisse_height_mm,omitempty"`
	CardboardType   string `json:"cardboard_type,omitempty"`
	PrintColors     int    `json:"print_colors,omitempty"`
	Quantity        string `json:"quantity,omitempty"`
	NumericQuantity int    `json:"numeric_quantity"`
	UnitPrice       string `json:"unit_price"`
	Total           string `json:"total"`
}

type orderResponse struct {
	ID          int64               `json:"id"`
	Reference   string              `json:"reference"`
	QuotationID int64               `json:"quotation_id"`
	ClientID    int64               `json:"client_id"`
	OrderDate   string              `json:"order_date"`
	Status      OrderStatus         `json:"status"`
	Currency    string              `json:"currency"`
	Notes       string              `json:"notes,omitempty"`
	Lines       []orderLineResponse `json:"lines,omitempty"`
}

type orderLineResponse struct {
	LineNumber      int    `json:"line_number"`
	Description     string `json:"description,omitempty"`
	Quantity        string `json:"quantity,omitempty"`
	NumericQuantity int    `json:"numeric_quantity"`
	UnitPrice       string `json:"unit_price"`
	Total           string `json:"total"`
}

const dateLayout = "2006-01-02"

func toQuotationResponse(q Quotation, lines []QuotationLine) quotationResponse {
	resp := quotationResponse{
		ID:            q.ID,
		Reference:     q.Reference,
		ClientID:      q.ClientID,
		Status:        q.Status,
		IsInitial:     q.IsInitial,
		PredecessorID: q.PredecessorID,
		IssueDate:     q.IssueDate.Format(dateLayout),
		Currency:      q.Currency,
		Notes:         q.Notes,
	}
	if !q.ValidUntil.IsZero() {
		resp.ValidUntil = q.ValidUntil.Format(dateLayout)
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Total())
		resp.Lines = append(resp.Lines, quotationLineResponse{
			LineNumber:      line.LineNumber,
			Description:     line.Description,
			CaisseLengthMM:  line.CaisseLengthMM,
			CaisseWidthMM:   line.CaisseWidthMM,
			CaisseHeightMM:  line.CaisseHeightMM,
			CardboardType:   line.CardboardType,
			PrintColors:     line.PrintColors,
			Quantity:        line.Quantity,
			NumericQuantity: line.NumericQuantity,
			UnitPrice:       line.UnitPrice.StringFixed(2),
			Total:           line.Total().StringFixed(2),
		})
	}
	resp.Total = total.StringFixed(2)
	return resp
}

func toOrderResponse(order ClientOrder, lines []OrderLine) orderResponse {
	resp := orderResponse{
		ID:          order.ID,
		Reference:   order.Reference,
		QuotationID: order.QuotationID,
		ClientID:    order.ClientID,
		OrderDate:   order.OrderDate.Format(dateLayout),
		Status:      order.Status,
		Currency:    order.Currency,
		Notes:       order.Notes,
	}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			LineNumber:      line.LineNumber,
			Description:     line.Description,
			Quantity:        line.Quantity,
			NumericQuantity: line.NumericQuantity,
			UnitPrice:       line.UnitPrice.StringFixed(2),
			Total:           line.Total().StringFixed(2),
		})
	}
	return resp
}

func (h *Handler) handleCreateQuotation(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeQuotation(w, r)
	if !ok {
		return
	}
	quotation, err := h.service.CreateQuotation(r.Context(), input)
	if err != nil {
		h.logger.Error("create quotation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	quotation, lines, err := h.service.GetQuotation(r.Context(), quotation.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toQuotationResponse(quotation, lines))
}

func (h *Handler) handleGetQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	quotation, lines, err := h.service.GetQuotation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toQuotationResponse(quotation, lines))
}

func (h *Handler) handleUpdateQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	input, ok := h.decodeQuotation(w, r)
	if !ok {
		return
	}
	if _, err := h.service.UpdateQuotation(r.Context(), id, input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	quotation, lines, err := h.service.GetQuotation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toQuotationResponse(quotation, lines))
}

func (h *Handler) handleReviseQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	var req quotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	revision, err := h.service.ReviseQuotation(r.Context(), id, quotationInputFrom(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	quotation, lines, err := h.service.GetQuotation(r.Context(), revision.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toQuotationResponse(quotation, lines))
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	order, err := h.service.ConvertToOrder(r.Context(), id)
	if err != nil {
		h.logger.Error("convert quotation", slog.Int64("quotation", id), slog.Any("error", err))
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

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, toOrderResponse(order, nil))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleClientQuotations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	quotations, err := h.service.ClientQuotations(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]quotationResponse, 0, len(quotations))
	for _, q := range quotations {
		resp = append(resp, toQuotationResponse(q, nil))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) decodeQuotation(w http.ResponseWriter, r *http.Request) (QuotationInput, bool) {
	var req quotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return QuotationInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return QuotationInput{}, false
	}
	return quotationInputFrom(req), true
}

func quotationInputFrom(req quotationRequest) QuotationInput {
	input := QuotationInput{
		ClientID:   req.ClientID,
		IsInitial:  req.IsInitial,
		IssueDate:  parseDate(req.IssueDate),
		ValidUntil: parseDate(req.ValidUntil),
		Currency:   req.Currency,
		Notes:      req.Notes,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, QuotationLineInput{
			Description:    line.Description,
			CaisseLengthMM: line.CaisseLengthMM,
			CaisseWidthMM:  line.CaisseWidthMM,
			CaisseHeightMM: line.CaisseHeightMM,
			CardboardType:  line.CardboardType,
			PrintColors:    line.PrintColors,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
		})
	}
	return input
}

func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
