package sales

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/embalage-erp/embalage-erp/internal/masterdata"
	"github.com/embalage-erp/embalage-erp/internal/refs"
	"github.com/embalage-erp/embalage-erp/internal/shared"
)

type memoryRepo struct {
	quotations map[int64]Quotation
	qLines     map[int64]QuotationLine
	orders     map[int64]ClientOrder
	oLines     map[int64]OrderLine
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		quotations: map[int64]Quotation{},
		qLines:     map[int64]QuotationLine{},
		orders:     map[int64]ClientOrder{},
		oLines:     map[int64]OrderLine{},
	}
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) GetQuotation(ctx context.Context, id int64) (Quotation, []QuotationLine, error) {
	q, ok := m.quotations[id]
	if !ok {
		return Quotation{}, nil, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	lines, _ := m.ListQuotationLines(ctx, id)
	return q, lines, nil
}

func (m *memoryRepo) ListClientQuotations(_ context.Context, clientID int64) ([]Quotation, error) {
	var out []Quotation
	for _, q := range m.quotations {
		if q.ClientID == clientID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryRepo) ClientHasInitial(_ context.Context, clientID int64) (bool, error) {
	for _, q := range m.quotations {
		if q.ClientID == clientID && q.IsInitial {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) QuotationRefExists(_ context.Context, reference string) (bool, error) {
	for _, q := range m.quotations {
		if q.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) GetOrder(_ context.Context, id int64) (ClientOrder, []OrderLine, error) {
	order, ok := m.orders[id]
	if !ok {
		return ClientOrder{}, nil, fmt.Errorf("client order %d: %w", id, shared.ErrNotFound)
	}
	var lines []OrderLine
	for _, line := range m.oLines {
		if line.ClientOrderID == id {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })
	return order, lines, nil
}

func (m *memoryRepo) ListOrders(_ context.Context) ([]ClientOrder, error) {
	var out []ClientOrder
	for _, order := range m.orders {
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryRepo) OrderRefExists(_ context.Context, reference string) (bool, error) {
	for _, order := range m.orders {
		if order.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) OrderExists(_ context.Context, id int64) (bool, error) {
	_, ok := m.orders[id]
	return ok, nil
}

func (m *memoryRepo) InsertQuotation(_ context.Context, q Quotation) (int64, error) {
	q.ID = m.id()
	q.CreatedAt = time.Now()
	m.quotations[q.ID] = q
	return q.ID, nil
}

func (m *memoryRepo) InsertQuotationLine(_ context.Context, line QuotationLine) (int64, error) {
	line.ID = m.id()
	m.qLines[line.ID] = line
	return line.ID, nil
}

func (m *memoryRepo) GetQuotationForUpdate(_ context.Context, id int64) (Quotation, error) {
	q, ok := m.quotations[id]
	if !ok {
		return Quotation{}, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	return q, nil
}

func (m *memoryRepo) ListQuotationLines(_ context.Context, quotationID int64) ([]QuotationLine, error) {
	var lines []QuotationLine
	for _, line := range m.qLines {
		if line.QuotationID == quotationID {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })
	return lines, nil
}

func (m *memoryRepo) ReplaceQuotationLines(ctx context.Context, quotationID int64, lines []QuotationLine) error {
	for id, line := range m.qLines {
		if line.QuotationID == quotationID {
			delete(m.qLines, id)
		}
	}
	for _, line := range lines {
		if _, err := m.InsertQuotationLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryRepo) UpdateQuotationHeader(_ context.Context, q Quotation) error {
	current := m.quotations[q.ID]
	current.ValidUntil = q.ValidUntil
	current.Currency = q.Currency
	current.Notes = q.Notes
	m.quotations[q.ID] = current
	return nil
}

func (m *memoryRepo) MarkConverted(_ context.Context, quotationID int64) error {
	q := m.quotations[quotationID]
	q.Status = QuotationConverted
	m.quotations[quotationID] = q
	return nil
}

func (m *memoryRepo) InsertOrder(_ context.Context, order ClientOrder) (int64, error) {
	order.ID = m.id()
	order.CreatedAt = time.Now()
	m.orders[order.ID] = order
	return order.ID, nil
}

func (m *memoryRepo) InsertOrderLine(_ context.Context, line OrderLine) (int64, error) {
	line.ID = m.id()
	m.oLines[line.ID] = line
	return line.ID, nil
}

type stubClients struct{}

func (stubClients) GetClient(_ context.Context, id int64) (masterdata.Client, error) {
	if id == 404 {
		return masterdata.Client{}, fmt.Errorf("client %d: %w", id, shared.ErrNotFound)
	}
	return masterdata.Client{ID: id, Name: "SARL Fruits"}, nil
}

type stubProduction struct {
	progress map[int64][2]int // orderID -> {total, readyCount}
}

func (s stubProduction) OrderProgress(_ context.Context, orderID int64) (bool, int, error) {
	p := s.progress[orderID]
	return p[0] > 0 && p[0] == p[1], p[0], nil
}

func newTestService(repo *memoryRepo, production ProductionPort) *Service {
	return NewService(repo, stubClients{}, refs.NewGenerator(nil), production, nil, nil)
}

func pendingQuotation(t *testing.T, svc *Service, clientID int64, initial bool) Quotation {
	t.Helper()
	q, err := svc.CreateQuotation(context.Background(), QuotationInput{
		ClientID:  clientID,
		IsInitial: initial,
		Lines: []QuotationLineInput{
			{Description: "caisse simple cannelure", CaisseLengthMM: 400, CaisseWidthMM: 300, CaisseHeightMM: 250, Quantity: "100 à 200", UnitPrice: "120.00"},
			{Description: "caisse double cannelure", Quantity: "environ 2000", UnitPrice: "85.50"},
		},
	})
	require.NoError(t, err)
	return q
}

func TestCreateQuotation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	q := pendingQuotation(t, svc, 1, true)
	require.Regexp(t, `^DV-[0-9A-F]{6}$`, q.Reference)
	require.Equal(t, QuotationPending, q.Status)
	require.True(t, q.IsInitial)

	_, lines, err := svc.GetQuotation(context.Background(), q.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, 200, lines[0].NumericQuantity, "range quantity resolves to the upper bound")
	require.Equal(t, 2000, lines[1].NumericQuantity)
	require.Equal(t, "24000", lines[0].Total().String())
}

func TestCreateQuotationValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.CreateQuotation(ctx, QuotationInput{ClientID: 1})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = svc.CreateQuotation(ctx, QuotationInput{ClientID: 404, Lines: []QuotationLineInput{{Quantity: "10"}}})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreateQuotation(ctx, QuotationInput{ClientID: 1, Lines: []QuotationLineInput{{UnitPrice: "cher"}}})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestSingleInitialQuotationPerClient(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	pendingQuotation(t, svc, 1, true)
	_, err := svc.CreateQuotation(context.Background(), QuotationInput{
		ClientID:  1,
		IsInitial: true,
		Lines:     []QuotationLineInput{{Quantity: "50"}},
	})
	require.ErrorIs(t, err, shared.ErrConflict)

	// other clients are unaffected
	pendingQuotation(t, svc, 2, true)
}

func TestUpdateQuotationFrozenAfterConversion(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	q := pendingQuotation(t, svc, 1, false)

	_, err := svc.UpdateQuotation(ctx, q.ID, QuotationInput{
		ClientID: 1,
		Notes:    "remise 5%",
		Lines:    []QuotationLineInput{{Quantity: "300", UnitPrice: "110.00"}},
	})
	require.NoError(t, err)
	_, lines, err := svc.GetQuotation(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, 300, lines[0].NumericQuantity)

	_, err = svc.ConvertToOrder(ctx, q.ID)
	require.NoError(t, err)

	_, err = svc.UpdateQuotation(ctx, q.ID, QuotationInput{
		ClientID: 1,
		Lines:    []QuotationLineInput{{Quantity: "999"}},
	})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestConvertToOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	q := pendingQuotation(t, svc, 1, false)

	order, err := svc.ConvertToOrder(ctx, q.ID)
	require.NoError(t, err)
	require.Regexp(t, `^CM-[0-9A-F]{6}$`, order.Reference)
	require.Equal(t, q.ID, order.QuotationID)
	require.Equal(t, q.ClientID, order.ClientID)

	converted, _, err := svc.GetQuotation(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuotationConverted, converted.Status)

	_, lines, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2, "order lines copied from the quotation")
	require.Equal(t, "100 à 200", lines[0].Quantity)
	require.Equal(t, 200, lines[0].NumericQuantity)

	_, err = svc.ConvertToOrder(ctx, q.ID)
	require.ErrorIs(t, err, shared.ErrConflict, "a quotation converts once")

	_, err = svc.ConvertToOrder(ctx, 9999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReviseQuotation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	q := pendingQuotation(t, svc, 1, true)

	_, err := svc.ConvertToOrder(ctx, q.ID)
	require.NoError(t, err)

	revision, err := svc.ReviseQuotation(ctx, q.ID, QuotationInput{})
	require.NoError(t, err)
	require.NotEqual(t, q.Reference, revision.Reference)
	require.Equal(t, q.ID, revision.PredecessorID)
	require.False(t, revision.IsInitial, "revisions are never initial")
	require.Equal(t, QuotationPending, revision.Status)

	_, lines, err := svc.GetQuotation(ctx, revision.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2, "lines carried over from the predecessor")

	original, _, err := svc.GetQuotation(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuotationConverted, original.Status, "predecessor untouched")
}

func TestOrderStatusDerivation(t *testing.T) {
	repo := newMemoryRepo()
	production := stubProduction{progress: map[int64][2]int{}}
	svc := newTestService(repo, production)
	ctx := context.Background()
	q := pendingQuotation(t, svc, 1, false)
	order, err := svc.ConvertToOrder(ctx, q.ID)
	require.NoError(t, err)

	got, _, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderInPreparation, got.Status)

	production.progress[order.ID] = [2]int{2, 1}
	got, _, err = svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderInProduction, got.Status)

	production.progress[order.ID] = [2]int{2, 2}
	got, _, err = svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderDone, got.Status)
}
