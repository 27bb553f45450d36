package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/embalage-erp/embalage-erp/internal/masterdata"
	"github.com/embalage-erp/embalage-erp/internal/refs"
	"github.com/embalage-erp/embalage-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuotation(ctx context.Context, id int64) (Quotation, []QuotationLine, error)
	ListClientQuotations(ctx context.Context, clientID int64) ([]Quotation, error)
	ClientHasInitial(ctx context.Context, clientID int64) (bool, error)
	QuotationRefExists(ctx context.Context, reference string) (bool, error)
	GetOrder(ctx context.Context, id int64) (ClientOrder, []OrderLine, error)
	ListOrders(ctx context.Context) ([]ClientOrder, error)
	OrderRefExists(ctx context.Context, reference string) (bool, error)
	OrderExists(ctx context.Context, id int64) (bool, error)
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	InsertQuotation(ctx context.Context, q Quotation) (int64, error)
	InsertQuotationLine(ctx context.Context, line QuotationLine) (int64, error)
	GetQuotationForUpdate(ctx context.Context, id int64) (Quotation, error)
	ListQuotationLines(ctx context.Context, quotationID int64) ([]QuotationLine, error)
	ReplaceQuotationLines(ctx context.Context, quotationID int64, lines []QuotationLine) error
	UpdateQuotationHeader(ctx context.Context, q Quotation) error
	MarkConverted(ctx context.Context, quotationID int64) error
	InsertOrder(ctx context.Context, order ClientOrder) (int64, error)
	InsertOrderLine(ctx context.Context, line OrderLine) (int64, error)
}

// ClientPort resolves client references.
type ClientPort interface {
	GetClient(ctx context.Context, id int64) (masterdata.Client, error)
}

// RefPort generates document references.
type RefPort interface {
	Unique(ctx context.Context, prefix string, exists refs.ExistsFunc) (string, error)
}

// ProductionPort reports batch progress for derived order statuses.
type ProductionPort interface {
	OrderProgress(ctx context.Context, clientOrderID int64) (done bool, total int, err error)
}

// Service owns quotations and client orders.
type Service struct {
	repo       RepositoryPort
	clients    ClientPort
	references RefPort
	production ProductionPort
	audit      shared.AuditPort
	logger     *slog.Logger
}

// NewService constructs the sales service. production and audit may be nil.
func NewService(repo RepositoryPort, clients ClientPort, references RefPort, production ProductionPort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, clients: clients, references: references, production: production, audit: audit, logger: logger}
}

// QuotationInput describes a quotation create or update payload.
type QuotationInput struct {
	ClientID   int64
	IsInitial  bool
	IssueDate  time.Time
	ValidUntil time.Time
	Currency   string
	Notes      string
	Lines      []QuotationLineInput
}

// QuotationLineInput describes one packaging position.
type QuotationLineInput struct {
	Description    string
	CaisseLengthMM int
	CaisseWidthMM  int
	CaisseHeightMM int
	CardboardType  string
	PrintColors    int
	Quantity       string
	UnitPrice      string
}

// CreateQuotation registers a new quotation with a generated DV reference.
// At most one initial quotation may exist per client.
func (s *Service) CreateQuotation(ctx context.Context, input QuotationInput) (Quotation, error) {
	if len(input.Lines) == 0 {
		return Quotation{}, fmt.Errorf("sales: at least one line required: %w", shared.ErrInvalidArgument)
	}
	if _, err := s.clients.GetClient(ctx, input.ClientID); err != nil {
		return Quotation{}, fmt.Errorf("sales: resolve client %d: %w", input.ClientID, err)
	}
	if input.IsInitial {
		has, err := s.repo.ClientHasInitial(ctx, input.ClientID)
		if err != nil {
			return Quotation{}, err
		}
		if has {
			return Quotation{}, fmt.Errorf("sales: client %d already has an initial quotation: %w", input.ClientID, shared.ErrConflict)
		}
	}
	reference, err := s.references.Unique(ctx, refs.PrefixQuotation, s.repo.QuotationRefExists)
	if err != nil {
		return Quotation{}, err
	}

	quotation := Quotation{
		Reference: reference,
		ClientID:  input.ClientID,
		Status:    QuotationPending,
		IsInitial: input.IsInitial,
		IssueDate: defaultTime(input.IssueDate),
		ValidUntil: input.ValidUntil,
		Currency:  defaultString(input.Currency, "DZD"),
		Notes:     input.Notes,
	}
	lines, err := linesFromInput(input.Lines)
	if err != nil {
		return Quotation{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertQuotation(ctx, quotation)
		if err != nil {
			return err
		}
		quotation.ID = id
		for i := range lines {
			lines[i].QuotationID = id
			if _, err := tx.InsertQuotationLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Quotation{}, err
	}
	s.recordAudit(ctx, "QUOTATION_CREATE", quotation.ID, map[string]any{"reference": quotation.Reference, "client": quotation.ClientID})
	return quotation, nil
}

// UpdateQuotation replaces a pending quotation's header fields and lines.
// Converted quotations are frozen.
func (s *Service) UpdateQuotation(ctx context.Context, quotationID int64, input QuotationInput) (Quotation, error) {
	if len(input.Lines) == 0 {
		return Quotation{}, fmt.Errorf("sales: at least one line required: %w", shared.ErrInvalidArgument)
	}
	lines, err := linesFromInput(input.Lines)
	if err != nil {
		return Quotation{}, err
	}
	var quotation Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetQuotationForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		if current.Status == QuotationConverted {
			return fmt.Errorf("sales: quotation %s already converted: %w", current.Reference, shared.ErrConflict)
		}
		current.ValidUntil = input.ValidUntil
		current.Currency = defaultString(input.Currency, current.Currency)
		current.Notes = input.Notes
		if err := tx.UpdateQuotationHeader(ctx, current); err != nil {
			return err
		}
		for i := range lines {
			lines[i].QuotationID = quotationID
		}
		if err := tx.ReplaceQuotationLines(ctx, quotationID, lines); err != nil {
			return err
		}
		quotation = current
		return nil
	})
	if err != nil {
		return Quotation{}, err
	}
	s.recordAudit(ctx, "QUOTATION_UPDATE", quotationID, map[string]any{"reference": quotation.Reference})
	return quotation, nil
}

// ReviseQuotation creates a fresh quotation superseding an existing one. The
// revision gets its own reference, is never initial, and points back at its
// predecessor. The predecessor itself is untouched, so converted quotations
// can still be revised.
func (s *Service) ReviseQuotation(ctx context.Context, quotationID int64, input QuotationInput) (Quotation, error) {
	predecessor, predecessorLines, err := s.repo.GetQuotation(ctx, quotationID)
	if err != nil {
		return Quotation{}, err
	}
	if len(input.Lines) == 0 {
		input.Lines = lineInputsFrom(predecessorLines)
	}
	lines, err := linesFromInput(input.Lines)
	if err != nil {
		return Quotation{}, err
	}
	reference, err := s.references.Unique(ctx, refs.PrefixQuotation, s.repo.QuotationRefExists)
	if err != nil {
		return Quotation{}, err
	}

	revision := Quotation{
		Reference:     reference,
		ClientID:      predecessor.ClientID,
		Status:        QuotationPending,
		PredecessorID: predecessor.ID,
		IssueDate:     defaultTime(input.IssueDate),
		ValidUntil:    input.ValidUntil,
		Currency:      defaultString(input.Currency, predecessor.Currency),
		Notes:         input.Notes,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertQuotation(ctx, revision)
		if err != nil {
			return err
		}
		revision.ID = id
		for i := range lines {
			lines[i].QuotationID = id
			if _, err := tx.InsertQuotationLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Quotation{}, err
	}
	s.recordAudit(ctx, "QUOTATION_REVISE", revision.ID, map[string]any{"reference": revision.Reference, "predecessor": predecessor.Reference})
	return revision, nil
}

// GetQuotation returns a quotation with its lines.
func (s *Service) GetQuotation(ctx context.Context, id int64) (Quotation, []QuotationLine, error) {
	return s.repo.GetQuotation(ctx, id)
}

// ClientQuotations lists a client's quotations, newest first.
func (s *Service) ClientQuotations(ctx context.Context, clientID int64) ([]Quotation, error) {
	if _, err := s.clients.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return s.repo.ListClientQuotations(ctx, clientID)
}

// ConvertToOrder turns a pending quotation into a client order. The quotation
// is marked converted and the order lines are copied in the same transaction,
// so the quotation can never be converted twice and the copy is always
// complete.
func (s *Service) ConvertToOrder(ctx context.Context, quotationID int64) (ClientOrder, error) {
	reference, err := s.references.Unique(ctx, refs.PrefixClientOrder, s.repo.OrderRefExists)
	if err != nil {
		return ClientOrder{}, err
	}

	var order ClientOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quotation, err := tx.GetQuotationForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		if quotation.Status == QuotationConverted {
			return fmt.Errorf("sales: quotation %s already converted: %w", quotation.Reference, shared.ErrConflict)
		}
		lines, err := tx.ListQuotationLines(ctx, quotationID)
		if err != nil {
			return err
		}

		order = ClientOrder{
			Reference:   reference,
			QuotationID: quotation.ID,
			ClientID:    quotation.ClientID,
			OrderDate:   time.Now(),
			Currency:    quotation.Currency,
			Notes:       quotation.Notes,
		}
		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID
		for _, line := range lines {
			if _, err := tx.InsertOrderLine(ctx, OrderLine{
				ClientOrderID:   orderID,
				LineNumber:      line.LineNumber,
				Description:     line.Description,
				CaisseLengthMM:  line.CaisseLengthMM,
				CaisseWidthMM:   line.CaisseWidthMM,
				CaisseHeightMM:  line.CaisseHeightMM,
				CardboardType:   line.CardboardType,
				PrintColors:     line.PrintColors,
				Quantity:        line.Quantity,
				NumericQuantity: line.NumericQuantity,
				UnitPrice:       line.UnitPrice,
			}); err != nil {
				return err
			}
		}
		return tx.MarkConverted(ctx, quotation.ID)
	})
	if err != nil {
		return ClientOrder{}, err
	}
	order.Status = OrderInPreparation
	s.recordAudit(ctx, "QUOTATION_CONVERT", quotationID, map[string]any{"order": order.Reference})
	return order, nil
}

// GetOrder returns an order with its lines and current derived status.
func (s *Service) GetOrder(ctx context.Context, id int64) (ClientOrder, []OrderLine, error) {
	order, lines, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return ClientOrder{}, nil, err
	}
	order.Status, err = s.orderStatus(ctx, order.ID)
	if err != nil {
		return ClientOrder{}, nil, err
	}
	return order, lines, nil
}

// ListOrders returns all orders with derived statuses.
func (s *Service) ListOrders(ctx context.Context) ([]ClientOrder, error) {
	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Status, err = s.orderStatus(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// OrderExists implements the production order check.
func (s *Service) OrderExists(ctx context.Context, id int64) (bool, error) {
	return s.repo.OrderExists(ctx, id)
}

func (s *Service) orderStatus(ctx context.Context, orderID int64) (OrderStatus, error) {
	if s.production == nil {
		return OrderInPreparation, nil
	}
	done, total, err := s.production.OrderProgress(ctx, orderID)
	if err != nil {
		return "", err
	}
	return DeriveOrderStatus(total, done), nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "sales", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func linesFromInput(inputs []QuotationLineInput) ([]QuotationLine, error) {
	lines := make([]QuotationLine, 0, len(inputs))
	for i, input := range inputs {
		price := decimal.Zero
		if input.UnitPrice != "" {
			parsed, err := decimal.NewFromString(input.UnitPrice)
			if err != nil {
				return nil, fmt.Errorf("sales: line %d unit price %q: %w", i+1, input.UnitPrice, shared.ErrInvalidArgument)
			}
			if parsed.IsNegative() {
				return nil, fmt.Errorf("sales: line %d negative unit price: %w", i+1, shared.ErrInvalidArgument)
			}
			price = parsed
		}
		lines = append(lines, QuotationLine{
			LineNumber:      i + 1,
			Description:     input.Description,
			CaisseLengthMM:  input.CaisseLengthMM,
			CaisseWidthMM:   input.CaisseWidthMM,
			CaisseHeightMM:  input.CaisseHeightMM,
			CardboardType:   input.CardboardType,
			PrintColors:     input.PrintColors,
			Quantity:        input.Quantity,
			NumericQuantity: NumericQuantity(input.Quantity),
			UnitPrice:       price,
		})
	}
	return lines, nil
}

func lineInputsFrom(lines []QuotationLine) []QuotationLineInput {
	inputs := make([]QuotationLineInput, 0, len(lines))
	for _, line := range lines {
		inputs = append(inputs, QuotationLineInput{
			Description:    line.Description,
			CaisseLengthMM: line.CaisseLengthMM,
			CaisseWidthMM:  line.CaisseWidthMM,
			CaisseHeightMM: line.CaisseHeightMM,
			CardboardType:  line.CardboardType,
			PrintColors:    line.PrintColors,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice.String(),
		})
	}
	return inputs
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
