package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supplier order lifecycle statuses. Three values: an order starts INITIAL,
// becomes PLACED on confirmation or first delivery, and ARRIVED only once
// every line item is fully delivered. The status is a cached projection of
// the delivery ledger, recomputed and persisted on every mutation.
type OrderStatus string

const (
	OrderStatusInitial OrderStatus = "INITIAL"
	OrderStatusPlaced  OrderStatus = "PLACED"
	OrderStatusArrived OrderStatus = "ARRIVED"
)

// Per-line delivery statuses derived from received vs ordered quantity.
type LineStatus string

const (
	LineStatusPending  LineStatus = "PENDING"
	LineStatusPartial  LineStatus = "PARTIAL"
	LineStatusComplete LineStatus = "COMPLETE"
)

// SupplierOrder is a purchase order placed with a raw-material supplier.
// ClientOrderID links material ordered on behalf of a client order; zero
// means stock replenishment.
type SupplierOrder struct {
	ID            int64
	SupplierID    int64
	ClientOrderID int64
	Reference     string
	OrderDate     time.Time
	Status        OrderStatus
	Confirmed     bool
	Currency      string
	Notes         string
	CreatedAt     time.Time
}

// LineItem is one material position on a supplier order. TotalReceived is
// the ledger sum (deliveries minus returns), never set directly.
type LineItem struct {
	ID              int64
	SupplierOrderID int64
	ClientID        int64
	LineNumber      int
	ArticleCode     string
	CaisseLengthMM  int
	CaisseWidthMM   int
	CaisseHeightMM  int
	PlaqueWidthMM   int
	PlaqueLengthMM  int
	PlaqueFlapMM    int
	UnitPrice       decimal.Decimal
	OrderedQuantity int
	TotalReceived   int
	Status          LineStatus
	CardboardType   string
	Notes           string
}

// MaterialDelivery is one append-only reception against a line item.
// Corrections are new deliveries or returns, never edits.
type MaterialDelivery struct {
	ID              int64
	LineItemID      int64
	DeliveryDate    time.Time
	ReceivedQty     int
	BatchReference  string
	QualityNotes    string
	CreatedAt       time.Time
}

// Return records quantity removed from a supplier order (quality rejection,
// excess). It reduces the effective received quantity but never rewrites
// delivery ledger entries.
type Return struct {
	ID              int64
	SupplierOrderID int64
	LineItemID      int64
	ReturnDate      time.Time
	Quantity        int
	Reason          string
}

// DeriveLineStatus computes a line's delivery status from the ledger totals.
// Over-delivery counts as COMPLETE; it is recorded, not rejected.
func DeriveLineStatus(totalReceived, ordered int) LineStatus {
	switch {
	case totalReceived <= 0:
		return LineStatusPending
	case totalReceived >= ordered:
		return LineStatusComplete
	default:
		return LineStatusPartial
	}
}

// DeriveOrderStatus aggregates line statuses into the order status.
// hasDelivery refers to ledger entries, so a fully returned order stays
// PLACED rather than reverting to INITIAL.
func DeriveOrderStatus(confirmed, hasDelivery bool, lines []LineItem) OrderStatus {
	if len(lines) > 0 {
		allComplete := true
		for _, line := range lines {
			if line.Status != LineStatusComplete {
				allComplete = false
				break
			}
		}
		if allComplete {
			return OrderStatusArrived
		}
	}
	if confirmed || hasDelivery {
		return OrderStatusPlaced
	}
	return OrderStatusInitial
}

// DeliverySummary aggregates reception progress for an order.
type DeliverySummary struct {
	SupplierOrderID   int64         `json:"supplier_order_id"`
	Reference         string        `json:"reference"`
	Status            OrderStatus   `json:"status"`
	TotalLineItems    int           `json:"total_line_items"`
	TotalOrdered      int           `json:"total_ordered"`
	TotalReceived     int           `json:"total_received"`
	OverallCompletion int           `json:"overall_completion"`
	Lines             []LineSummary `json:"lines"`
}

// LineSummary is the per-line slice of a DeliverySummary.
type LineSummary struct {
	LineItemID  int64      `json:"line_item_id"`
	ArticleCode string     `json:"article_code"`
	Dimensions  string     `json:"dimensions"`
	Ordered     int        `json:"ordered"`
	Received    int        `json:"received"`
	Remaining   int        `json:"remaining"`
	Completion  int        `json:"completion"`
	Status      LineStatus `json:"status"`
}
