package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/embalage-erp/embalage-erp/internal/masterdata"
	"github.com/embalage-erp/embalage-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (SupplierOrder, []LineItem, error)
	GetLineItem(ctx context.Context, id int64) (LineItem, error)
	ListLineDeliveries(ctx context.Context, lineItemID int64) ([]MaterialDelivery, error)
	ListOrderReturns(ctx context.Context, orderID int64) ([]Return, error)
	ListPendingLines(ctx context.Context) ([]PendingLine, error)
	ListOrderIDs(ctx context.Context) ([]int64, error)
	FindLinesByPlaque(ctx context.Context, widthMM, lengthMM, flapMM int) ([]LineItem, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
}

// SupplierPort resolves supplier references.
type SupplierPort interface {
	GetSupplier(ctx context.Context, id int64) (masterdata.Supplier, error)
}

// PurchaseRefPort allocates year-scoped purchase order numbers.
type PurchaseRefPort interface {
	PurchaseOrderRef(ctx context.Context) (string, error)
}

// SummaryCachePort caches delivery summaries per order. Any Get error is
// treated as a miss.
type SummaryCachePort interface {
	Get(ctx context.Context, supplierOrderID int64, target any) error
	Set(ctx context.Context, supplierOrderID int64, value any) error
	Invalidate(ctx context.Context, supplierOrderID int64) error
}

// Service owns supplier order status and partial-delivery accounting.
type Service struct {
	repo      RepositoryPort
	suppliers SupplierPort
	refs      PurchaseRefPort
	cache     SummaryCachePort
	audit     shared.AuditPort
	logger    *slog.Logger
}

// NewService constructs the fulfillment service. cache and audit may be nil.
func NewService(repo RepositoryPort, suppliers SupplierPort, refs PurchaseRefPort, cache SummaryCachePort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, suppliers: suppliers, refs: refs, cache: cache, audit: audit, logger: logger}
}

// CreateOrderInput describes a supplier order creation payload.
type CreateOrderInput struct {
	SupplierID    int64
	ClientOrderID int64
	Reference     string
	OrderDate     time.Time
	Currency      string
	Notes         string
	Lines         []LineInput
}

// LineInput describes one material line.
type LineInput struct {
	ClientID        int64
	ArticleCode     string
	CaisseLengthMM  int
	CaisseWidthMM   int
	CaisseHeightMM  int
	PlaqueWidthMM   int
	PlaqueLengthMM  int
	PlaqueFlapMM    int
	UnitPrice       string
	OrderedQuantity int
}

// RecordDeliveryInput describes a material reception.
type RecordDeliveryInput struct {
	LineItemID     int64
	ReceivedQty    int
	DeliveryDate   time.Time
	BatchReference string
	QualityNotes   string
}

// RecordReturnInput describes a material return. LineItemID may be zero when
// the order has a single line.
type RecordReturnInput struct {
	SupplierOrderID int64
	LineItemID      int64
	Quantity        int
	Reason          string
}

// PendingLine is a line item still awaiting material.
type PendingLine struct {
	LineItemID      int64      `json:"line_item_id"`
	SupplierOrderID int64      `json:"supplier_order_id"`
	Reference       string     `json:"reference"`
	ArticleCode     string     `json:"article_code"`
	Ordered         int        `json:"ordered"`
	Received        int        `json:"received"`
	Remaining       int        `json:"remaining"`
	Status          LineStatus `json:"status"`
}

// CreateSupplierOrder persists the order header and lines. Status starts
// INITIAL with every line PENDING. When no reference is supplied a BC number
// is allocated from the year-scoped sequence.
func (s *Service) CreateSupplierOrder(ctx context.Context, input CreateOrderInput) (SupplierOrder, error) {
	if len(input.Lines) == 0 {
		return SupplierOrder{}, fmt.Errorf("procurement: at least one line required: %w", shared.ErrInvalidArgument)
	}
	for i, line := range input.Lines {
		if line.OrderedQuantity < 0 {
			return SupplierOrder{}, fmt.Errorf("procurement: line %d ordered quantity: %w", i+1, shared.ErrInvalidArgument)
		}
	}
	if _, err := s.suppliers.GetSupplier(ctx, input.SupplierID); err != nil {
		return SupplierOrder{}, fmt.Errorf("procurement: resolve supplier %d: %w", input.SupplierID, err)
	}
	if input.Reference == "" {
		ref, err := s.refs.PurchaseOrderRef(ctx)
		if err != nil {
			return SupplierOrder{}, err
		}
		input.Reference = ref
	}

	order := SupplierOrder{
		SupplierID:    input.SupplierID,
		ClientOrderID: input.ClientOrderID,
		Reference:     input.Reference,
		OrderDate:     defaultTime(input.OrderDate),
		Status:        OrderStatusInitial,
		Currency:      defaultString(input.Currency, "DZD"),
		Notes:         input.Notes,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orderID, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID
		for i, line := range input.Lines {
			item, err := lineFromInput(orderID, i+1, line)
			if err != nil {
				return err
			}
			if _, err := tx.InsertLineItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SupplierOrder{}, err
	}
	s.recordAudit(ctx, "SUPPLIER_ORDER_CREATE", order.ID, map[string]any{"reference": order.Reference, "lines": len(input.Lines)})
	return order, nil
}

// ConfirmOrder marks an INITIAL order as placed with the supplier before any
// material has arrived.
func (s *Service) ConfirmOrder(ctx context.Context, orderID int64) (SupplierOrder, error) {
	order, lines, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return SupplierOrder{}, err
	}
	if order.Status != OrderStatusInitial {
		return SupplierOrder{}, fmt.Errorf("procurement: order %s already %s: %w", order.Reference, order.Status, shared.ErrConflict)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		status := DeriveOrderStatus(true, false, lines)
		return tx.UpdateOrderStatus(ctx, orderID, status, true)
	})
	if err != nil {
		return SupplierOrder{}, err
	}
	s.invalidateSummary(ctx, orderID)
	s.recordAudit(ctx, "SUPPLIER_ORDER_CONFIRM", orderID, map[string]any{"reference": order.Reference})
	order.Confirmed = true
	order.Status = OrderStatusPlaced
	return order, nil
}

// RecordDelivery appends a MaterialDelivery to a line item and recomputes the
// line's received total and status plus the owning order's status, all in one
// transaction so no reader observes a delivery without its derived state.
func (s *Service) RecordDelivery(ctx context.Context, input RecordDeliveryInput) (MaterialDelivery, error) {
	if input.ReceivedQty <= 0 {
		return MaterialDelivery{}, fmt.Errorf("procurement: received quantity must be positive: %w", shared.ErrInvalidArgument)
	}
	line, err := s.repo.GetLineItem(ctx, input.LineItemID)
	if err != nil {
		return MaterialDelivery{}, err
	}

	delivery := MaterialDelivery{
		LineItemID:     input.LineItemID,
		DeliveryDate:   defaultTime(input.DeliveryDate),
		ReceivedQty:    input.ReceivedQty,
		BatchReference: input.BatchReference,
		QualityNotes:   input.QualityNotes,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertDelivery(ctx, delivery)
		if err != nil {
			return err
		}
		delivery.ID = id
		if _, err := s.recomputeLine(ctx, tx, line); err != nil {
			return err
		}
		return s.recomputeOrder(ctx, tx, line.SupplierOrderID)
	})
	if err != nil {
		return MaterialDelivery{}, err
	}
	s.invalidateSummary(ctx, line.SupplierOrderID)
	s.recordAudit(ctx, "MATERIAL_DELIVERY", line.SupplierOrderID, map[string]any{"line_item": line.ID, "received": input.ReceivedQty, "batch": input.BatchReference})
	return delivery, nil
}

// RecordReturn registers quantity sent back to the supplier. The delivery
// ledger is untouched; the line's effective received total drops, which may
// demote an ARRIVED order back to PLACED.
func (s *Service) RecordReturn(ctx context.Context, input RecordReturnInput) (Return, error) {
	if input.Quantity <= 0 {
		return Return{}, fmt.Errorf("procurement: return quantity must be positive: %w", shared.ErrInvalidArgument)
	}
	order, lines, err := s.repo.GetOrder(ctx, input.SupplierOrderID)
	if err != nil {
		return Return{}, err
	}
	line, err := resolveReturnLine(lines, input.LineItemID)
	if err != nil {
		return Return{}, err
	}

	ret := Return{
		SupplierOrderID: order.ID,
		LineItemID:      line.ID,
		ReturnDate:      time.Now(),
		Quantity:        input.Quantity,
		Reason:          input.Reason,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertReturn(ctx, ret)
		if err != nil {
			return err
		}
		ret.ID = id
		if _, err := s.recomputeLine(ctx, tx, line); err != nil {
			return err
		}
		return s.recomputeOrder(ctx, tx, order.ID)
	})
	if err != nil {
		return Return{}, err
	}
	s.invalidateSummary(ctx, order.ID)
	s.recordAudit(ctx, "MATERIAL_RETURN", order.ID, map[string]any{"line_item": line.ID, "quantity": input.Quantity, "reason": input.Reason})
	return ret, nil
}

// GetOrder returns an order with its lines.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (SupplierOrder, []LineItem, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// LineDeliveries returns the full reception history of a line item.
func (s *Service) LineDeliveries(ctx context.Context, lineItemID int64) ([]MaterialDelivery, error) {
	if _, err := s.repo.GetLineItem(ctx, lineItemID); err != nil {
		return nil, err
	}
	return s.repo.ListLineDeliveries(ctx, lineItemID)
}

// Summary assembles reception progress for an order, served from cache when
// warm.
func (s *Service) Summary(ctx context.Context, orderID int64) (DeliverySummary, error) {
	if s.cache != nil {
		var cached DeliverySummary
		if err := s.cache.Get(ctx, orderID, &cached); err == nil {
			return cached, nil
		}
	}
	order, lines, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return DeliverySummary{}, err
	}
	summary := DeliverySummary{
		SupplierOrderID: order.ID,
		Reference:       order.Reference,
		Status:          order.Status,
		TotalLineItems:  len(lines),
	}
	for _, line := range lines {
		remaining := line.OrderedQuantity - line.TotalReceived
		if remaining < 0 {
			remaining = 0
		}
		completion := 0
		if line.OrderedQuantity > 0 {
			completion = line.TotalReceived * 100 / line.OrderedQuantity
		}
		summary.TotalOrdered += line.OrderedQuantity
		summary.TotalReceived += line.TotalReceived
		summary.Lines = append(summary.Lines, LineSummary{
			LineItemID:  line.ID,
			ArticleCode: line.ArticleCode,
			Dimensions:  fmt.Sprintf("%dx%dx%dmm", line.PlaqueWidthMM, line.PlaqueLengthMM, line.PlaqueFlapMM),
			Ordered:     line.OrderedQuantity,
			Received:    line.TotalReceived,
			Remaining:   remaining,
			Completion:  completion,
			Status:      line.Status,
		})
	}
	if summary.TotalOrdered > 0 {
		summary.OverallCompletion = summary.TotalReceived * 100 / summary.TotalOrdered
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, orderID, summary); err != nil {
			s.logger.Warn("cache summary", slog.Int64("order", orderID), slog.Any("error", err))
		}
	}
	return summary, nil
}

// PendingDeliveries lists line items still awaiting material across all
// non-arrived orders.
func (s *Service) PendingDeliveries(ctx context.Context) ([]PendingLine, error) {
	return s.repo.ListPendingLines(ctx)
}

// MatchLineItems finds open line items with the given plaque dimensions, used
// when a reception arrives identified only by its measurements.
func (s *Service) MatchLineItems(ctx context.Context, widthMM, lengthMM, flapMM int) ([]LineItem, error) {
	if widthMM <= 0 || lengthMM <= 0 {
		return nil, fmt.Errorf("procurement: plaque dimensions must be positive: %w", shared.ErrInvalidArgument)
	}
	return s.repo.FindLinesByPlaque(ctx, widthMM, lengthMM, flapMM)
}

// Reconcile recomputes every line's received total and every order's status
// from the ledger. The stored columns are projections; a sweep repairs any
// drift left by manual database surgery or interrupted writes.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	ids, err := s.repo.ListOrderIDs(ctx)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, orderID := range ids {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			lines, err := tx.ListLines(ctx, orderID)
			if err != nil {
				return err
			}
			changed := false
			for _, line := range lines {
				fixed, err := s.recomputeLine(ctx, tx, line)
				if err != nil {
					return err
				}
				if fixed.TotalReceived != line.TotalReceived || fixed.Status != line.Status {
					changed = true
				}
			}
			if err := s.recomputeOrder(ctx, tx, orderID); err != nil {
				return err
			}
			if changed {
				repaired++
			}
			return nil
		})
		if err != nil {
			return repaired, fmt.Errorf("procurement: reconcile order %d: %w", orderID, err)
		}
		s.invalidateSummary(ctx, orderID)
	}
	return repaired, nil
}

// recomputeLine re-derives a line's received total and status from the
// ledger and persists both.
func (s *Service) recomputeLine(ctx context.Context, tx TxRepository, line LineItem) (LineItem, error) {
	delivered, err := tx.SumLineDeliveries(ctx, line.ID)
	if err != nil {
		return LineItem{}, err
	}
	returned, err := tx.SumLineReturns(ctx, line.ID)
	if err != nil {
		return LineItem{}, err
	}
	line.TotalReceived = delivered - returned
	line.Status = DeriveLineStatus(line.TotalReceived, line.OrderedQuantity)
	if err := tx.UpdateLineDerived(ctx, line.ID, line.TotalReceived, line.Status); err != nil {
		return LineItem{}, err
	}
	return line, nil
}

// recomputeOrder re-derives the order status from all its lines.
func (s *Service) recomputeOrder(ctx context.Context, tx TxRepository, orderID int64) error {
	order, err := tx.GetOrderHeader(ctx, orderID)
	if err != nil {
		return err
	}
	lines, err := tx.ListLines(ctx, orderID)
	if err != nil {
		return err
	}
	deliveries, err := tx.CountOrderDeliveries(ctx, orderID)
	if err != nil {
		return err
	}
	status := DeriveOrderStatus(order.Confirmed, deliveries > 0, lines)
	return tx.UpdateOrderStatus(ctx, orderID, status, order.Confirmed)
}

func (s *Service) invalidateSummary(ctx context.Context, orderID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, orderID); err != nil {
		s.logger.Warn("invalidate summary cache", slog.Int64("order", orderID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "procurement", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func resolveReturnLine(lines []LineItem, lineItemID int64) (LineItem, error) {
	if lineItemID == 0 {
		if len(lines) == 1 {
			return lines[0], nil
		}
		return LineItem{}, fmt.Errorf("procurement: line item required for multi-line order: %w", shared.ErrInvalidArgument)
	}
	for _, line := range lines {
		if line.ID == lineItemID {
			return line, nil
		}
	}
	return LineItem{}, fmt.Errorf("procurement: line item %d: %w", lineItemID, shared.ErrNotFound)
}

func lineFromInput(orderID int64, lineNumber int, input LineInput) (LineItem, error) {
	price, err := parsePrice(input.UnitPrice)
	if err != nil {
		return LineItem{}, err
	}
	return LineItem{
		SupplierOrderID: orderID,
		ClientID:        input.ClientID,
		LineNumber:      lineNumber,
		ArticleCode:     input.ArticleCode,
		CaisseLengthMM:  input.CaisseLengthMM,
		CaisseWidthMM:   input.CaisseWidthMM,
		CaisseHeightMM:  input.CaisseHeightMM,
		PlaqueWidthMM:   input.PlaqueWidthMM,
		PlaqueLengthMM:  input.PlaqueLengthMM,
		PlaqueFlapMM:    input.PlaqueFlapMM,
		UnitPrice:       price,
		OrderedQuantity: input.OrderedQuantity,
		Status:          LineStatusPending,
	}, nil
}

func parsePrice(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("procurement: unit price %q: %w", value, shared.ErrInvalidArgument)
	}
	if price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("procurement: negative unit price: %w", shared.ErrInvalidArgument)
	}
	return price, nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now()
	}
	return value
}
