// Package sales covers the commercial side of the workflow: quotations, their
// conversion into client orders, and the derived order status.
package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuotationStatus tracks a quotation's lifecycle. A converted quotation is
// immutable; corrections go through a revision.
type QuotationStatus string

const (
	QuotationPending   QuotationStatus = "PENDING"
	QuotationConverted QuotationStatus = "CONVERTED"
)

// OrderStatus is derived from production progress, never stored.
type OrderStatus string

const (
	OrderInPreparation OrderStatus = "EN_PREPARATION"
	OrderInProduction  OrderStatus = "EN_PRODUCTION"
	OrderDone          OrderStatus = "TERMINE"
)

// Quotation is a commercial offer for custom packaging. IsInitial marks the
// first quotation of a client relationship; a client lineage carries at most
// one.
type Quotation struct {
	ID            int64
	Reference     string
	ClientID      int64
	Status        QuotationStatus
	IsInitial     bool
	PredecessorID int64
	IssueDate     time.Time
	ValidUntil    time.Time
	Currency      string
	Notes         string
	CreatedAt     time.Time
}

// QuotationLine is one packaging position. Quantity is the free-form text the
// sales team writes ("100 à 200 caisses", "environ 2000"); NumericQuantity is
// the integer estimate parsed from it and is what totals use.
type QuotationLine struct {
	ID              int64
	QuotationID     int64
	LineNumber      int
	Description     string
	CaisseLengthMM  int
	CaisseWidthMM   int
	CaisseHeightMM  int
	CardboardType   string
	PrintColors     int
	Quantity        string
	NumericQuantity int
	UnitPrice       decimal.Decimal
}

// Total is the line estimate: parsed quantity times unit price.
func (l QuotationLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.NumericQuantity)))
}

// ClientOrder is a confirmed order created from a quotation. Its lines are a
// copy frozen at conversion time.
type ClientOrder struct {
	ID          int64
	Reference   string
	QuotationID int64
	ClientID    int64
	OrderDate   time.Time
	Status      OrderStatus
	Currency    string
	Notes       string
	CreatedAt   time.Time
}

// OrderLine mirrors the quotation line it was copied from.
type OrderLine struct {
	ID              int64
	ClientOrderID   int64
	LineNumber      int
	Description     string
	CaisseLengthMM  int
	CaisseWidthMM   int
	CaisseHeightMM  int
	CardboardType   string
	PrintColors     int
	Quantity        string
	NumericQuantity int
	UnitPrice       decimal.Decimal
}

// Total is the line amount: parsed quantity times unit price.
func (l OrderLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.NumericQuantity)))
}

// DeriveOrderStatus maps production progress to the client-facing status.
// Orders with no batches yet are in preparation; once every batch is READY
// the order is done.
func DeriveOrderStatus(batches int, allReady bool) OrderStatus {
	switch {
	case batches == 0:
		return OrderInPreparation
	case allReady:
		return OrderDone
	default:
		return OrderInProduction
	}
}
