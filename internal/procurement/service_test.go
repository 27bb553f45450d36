package procurement

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/embalage-erp/embalage-erp/internal/masterdata"
	"github.com/embalage-erp/embalage-erp/internal/shared"
)

type memoryRepo struct {
	orders     map[int64]SupplierOrder
	lines      map[int64]LineItem
	deliveries map[int64]MaterialDelivery
	returns    map[int64]Return
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:     map[int64]SupplierOrder{},
		lines:      map[int64]LineItem{},
		deliveries: map[int64]MaterialDelivery{},
		returns:    map[int64]Return{},
	}
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) GetOrder(ctx context.Context, id int64) (SupplierOrder, []LineItem, error) {
	order, ok := m.orders[id]
	if !ok {
		return SupplierOrder{}, nil, fmt.Errorf("supplier order %d: %w", id, shared.ErrNotFound)
	}
	lines, err := m.ListLines(ctx, id)
	return order, lines, err
}

func (m *memoryRepo) GetLineItem(_ context.Context, id int64) (LineItem, error) {
	line, ok := m.lines[id]
	if !ok {
		return LineItem{}, fmt.Errorf("line item %d: %w", id, shared.ErrNotFound)
	}
	return line, nil
}

func (m *memoryRepo) ListLineDeliveries(_ context.Context, lineItemID int64) ([]MaterialDelivery, error) {
	var out []MaterialDelivery
	for _, d := range m.deliveries {
		if d.LineItemID == lineItemID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListOrderReturns(_ context.Context, orderID int64) ([]Return, error) {
	var out []Return
	for _, ret := range m.returns {
		if ret.SupplierOrderID == orderID {
			out = append(out, ret)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListPendingLines(_ context.Context) ([]PendingLine, error) {
	var out []PendingLine
	for _, line := range m.lines {
		order := m.orders[line.SupplierOrderID]
		if line.Status == LineStatusComplete || order.Status == OrderStatusArrived {
			continue
		}
		out = append(out, PendingLine{
			LineItemID:      line.ID,
			SupplierOrderID: line.SupplierOrderID,
			Reference:       order.Reference,
			ArticleCode:     line.ArticleCode,
			Ordered:         line.OrderedQuantity,
			Received:        line.TotalReceived,
			Remaining:       line.OrderedQuantity - line.TotalReceived,
			Status:          line.Status,
		})
	}
	return out, nil
}

func (m *memoryRepo) FindLinesByPlaque(_ context.Context, widthMM, lengthMM, flapMM int) ([]LineItem, error) {
	var out []LineItem
	for _, line := range m.lines {
		if line.PlaqueWidthMM == widthMM && line.PlaqueLengthMM == lengthMM && line.PlaqueFlapMM == flapMM && line.Status != LineStatusComplete {
			out = append(out, line)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListOrderIDs(_ context.Context) ([]int64, error) {
	var ids []int64
	for id := range m.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memoryRepo) ReferenceExists(_ context.Context, reference string) (bool, error) {
	for _, order := range m.orders {
		if order.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) CreateOrder(_ context.Context, order SupplierOrder) (int64, error) {
	for _, existing := range m.orders {
		if existing.Reference == order.Reference {
			return 0, fmt.Errorf("reference %s already used: %w", order.Reference, shared.ErrConflict)
		}
	}
	order.ID = m.id()
	order.CreatedAt = time.Now()
	m.orders[order.ID] = order
	return order.ID, nil
}

func (m *memoryRepo) InsertLineItem(_ context.Context, line LineItem) (int64, error) {
	line.ID = m.id()
	m.lines[line.ID] = line
	return line.ID, nil
}

func (m *memoryRepo) GetOrderHeader(_ context.Context, orderID int64) (SupplierOrder, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return SupplierOrder{}, fmt.Errorf("supplier order %d: %w", orderID, shared.ErrNotFound)
	}
	return order, nil
}

func (m *memoryRepo) ListLines(_ context.Context, orderID int64) ([]LineItem, error) {
	var out []LineItem
	for _, line := range m.lines {
		if line.SupplierOrderID == orderID {
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out, nil
}

func (m *memoryRepo) UpdateOrderStatus(_ context.Context, orderID int64, status OrderStatus, confirmed bool) error {
	order := m.orders[orderID]
	order.Status = status
	order.Confirmed = confirmed
	m.orders[orderID] = order
	return nil
}

func (m *memoryRepo) InsertDelivery(_ context.Context, delivery MaterialDelivery) (int64, error) {
	delivery.ID = m.id()
	delivery.CreatedAt = time.Now()
	m.deliveries[delivery.ID] = delivery
	return delivery.ID, nil
}

func (m *memoryRepo) InsertReturn(_ context.Context, ret Return) (int64, error) {
	ret.ID = m.id()
	m.returns[ret.ID] = ret
	return ret.ID, nil
}

func (m *memoryRepo) SumLineDeliveries(_ context.Context, lineItemID int64) (int, error) {
	total := 0
	for _, d := range m.deliveries {
		if d.LineItemID == lineItemID {
			total += d.ReceivedQty
		}
	}
	return total, nil
}

func (m *memoryRepo) SumLineReturns(_ context.Context, lineItemID int64) (int, error) {
	total := 0
	for _, ret := range m.returns {
		if ret.LineItemID == lineItemID {
			total += ret.Quantity
		}
	}
	return total, nil
}

func (m *memoryRepo) CountOrderDeliveries(_ context.Context, orderID int64) (int, error) {
	count := 0
	for _, d := range m.deliveries {
		if line, ok := m.lines[d.LineItemID]; ok && line.SupplierOrderID == orderID {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) UpdateLineDerived(_ context.Context, lineItemID int64, totalReceived int, status LineStatus) error {
	line := m.lines[lineItemID]
	line.TotalReceived = totalReceived
	line.Status = status
	m.lines[lineItemID] = line
	return nil
}

type stubSuppliers struct {
	known map[int64]bool
}

func (s stubSuppliers) GetSupplier(_ context.Context, id int64) (masterdata.Supplier, error) {
	if !s.known[id] {
		return masterdata.Supplier{}, fmt.Errorf("supplier %d: %w", id, shared.ErrNotFound)
	}
	return masterdata.Supplier{ID: id, Name: "Cartonnerie"}, nil
}

type stubRefs struct {
	seq int
}

func (s *stubRefs) PurchaseOrderRef(context.Context) (string, error) {
	s.seq++
	return fmt.Sprintf("BC%02d/2026", s.seq), nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, stubSuppliers{known: map[int64]bool{1: true}}, &stubRefs{}, nil, nil, nil)
}

func createOrder(t *testing.T, svc *Service, ordered ...int) (SupplierOrder, []LineItem) {
	t.Helper()
	input := CreateOrderInput{SupplierID: 1}
	for _, qty := range ordered {
		input.Lines = append(input.Lines, LineInput{
			ClientID:        7,
			PlaqueWidthMM:   800,
			PlaqueLengthMM:  1200,
			PlaqueFlapMM:    40,
			UnitPrice:       "35.50",
			OrderedQuantity: qty,
		})
	}
	order, err := svc.CreateSupplierOrder(context.Background(), input)
	require.NoError(t, err)
	full, lines, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	return full, lines
}

func TestCreateSupplierOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	order, lines := createOrder(t, svc, 100)
	require.Equal(t, OrderStatusInitial, order.Status)
	require.False(t, order.Confirmed)
	require.Equal(t, "BC01/2026", order.Reference)
	require.Len(t, lines, 1)
	require.Equal(t, LineStatusPending, lines[0].Status)
	require.Equal(t, 0, lines[0].TotalReceived)

	second, _ := createOrder(t, svc, 50)
	require.Equal(t, "BC02/2026", second.Reference)
}

func TestCreateSupplierOrderForClientOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	created, err := svc.CreateSupplierOrder(context.Background(), CreateOrderInput{
		SupplierID:    1,
		ClientOrderID: 42,
		Lines:         []LineInput{{ClientID: 7, OrderedQuantity: 10}},
	})
	require.NoError(t, err)

	order, _, err := svc.GetOrder(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(42), order.ClientOrderID)
}

func TestCreateSupplierOrderValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.CreateSupplierOrder(context.Background(), CreateOrderInput{SupplierID: 1})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = svc.CreateSupplierOrder(context.Background(), CreateOrderInput{
		SupplierID: 99,
		Lines:      []LineInput{{ClientID: 7, OrderedQuantity: 10}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreateSupplierOrder(context.Background(), CreateOrderInput{
		SupplierID: 1,
		Lines:      []LineInput{{ClientID: 7, OrderedQuantity: 10, UnitPrice: "not a price"}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestConfirmOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	order, _ := createOrder(t, svc, 100)

	confirmed, err := svc.ConfirmOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusPlaced, confirmed.Status)
	require.True(t, confirmed.Confirmed)

	_, err = svc.ConfirmOrder(context.Background(), order.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestPartialDeliveryLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	order, lines := createOrder(t, svc, 100)
	lineID := lines[0].ID

	_, err := svc.RecordDelivery(ctx, RecordDeliveryInput{LineItemID: lineID, ReceivedQty: 60})
	require.NoError(t, err)
	_, lines, err = svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 60, lines[0].TotalReceived)
	require.Equal(t, LineStatusPartial, lines[0].Status)
	require.Equal(t, OrderStatusPlaced, repo.orders[order.ID].Status)

	_, err = svc.RecordDelivery(ctx, RecordDeliveryInput{LineItemID: lineID, ReceivedQty: 40})
	require.NoError(t, err)
	_, lines, err = svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 100, lines[0].TotalReceived)
	require.Equal(t, LineStatusComplete, lines[0].Status)
	require.Equal(t, OrderStatusArrived, repo.orders[order.ID].Status)

	_, err = svc.RecordReturn(ctx, RecordReturnInput{SupplierOrderID: order.ID, Quantity: 20, Reason: "damaged plaques"})
	require.NoError(t, err)
	_, lines, err = svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 80, lines[0].TotalReceived)
	require.Equal(t, LineStatusPartial, lines[0].Status)
	require.Equal(t, OrderStatusPlaced, repo.orders[order.ID].Status)

	deliveries, err := svc.LineDeliveries(ctx, lineID)
	require.NoError(t, err)
	require.Len(t, deliveries, 2, "returns never rewrite the delivery ledger")
	for _, d := range deliveries {
		require.False(t, d.CreatedAt.IsZero(), "ledger rows carry their insertion timestamp")
	}
}

func TestRecordDeliveryValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.RecordDelivery(ctx, RecordDeliveryInput{LineItemID: 1, ReceivedQty: 0})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = svc.RecordDelivery(ctx, RecordDeliveryInput{LineItemID: 404, ReceivedQty: 10})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOverDeliveryCountsComplete(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	order, lines := createOrder(t, svc, 100)

	_, err := svc.RecordDelivery(ctx, RecordDeliveryInput{LineItemID: lines[0].ID, ReceivedQty: 120})
	require.NoError(t, err)
	_, lines, err = svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 120, lines[0].TotalReceived)
	require.Equal(t, LineStatusComplete, lines[0].Status)
	require.Equal(t, OrderStatusArrived, repo.orders[order.ID].Status)
}

func TestRecordReturnLineResolution(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	order, lines := createOrder(t, svc, 100, 50)

	_, err := svc.RecordDelivery(ctx, RecordDeliveryInput{LineItemID: lines[0].ID, ReceivedQty: 30})
	require.NoError(t, err)

	_, err = svc.RecordReturn(ctx, RecordReturnInput{SupplierOrderID: order.ID, Quantity: 10})
	require.ErrorIs(t, err, shared.ErrInvalidArgument, "multi-line order needs an explicit line item")

	_, err = svc.RecordReturn(ctx, RecordReturnInput{SupplierOrderID: order.ID, LineItemID: 9999, Quantity: 10})
	require.ErrorIs(t, err, shared.ErrNotFound)

	ret, err := svc.RecordReturn(ctx, RecordReturnInput{SupplierOrderID: order.ID, LineItemID: lines[0].ID, Quantity: 10})
	require.NoError(t, err)
	require.Equal(t, lines[0].ID, ret.LineItemID)
	require.Equal(t, 20, repo.lines[lines[0].ID].TotalReceived)
}

func TestFullyReturnedOrderStaysPlaced(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	order, lines := createOrder(t, svc, 100)

	_, err := svc.RecordDelivery(ctx, RecordDeliveryInput{LineItemID: lines[0].ID, ReceivedQty: 40})
	require.NoError(t, err)
	_, err = svc.RecordReturn(ctx, RecordReturnInput{SupplierOrderID: order.ID, Quantity: 40})
	require.NoError(t, err)

	require.Equal(t, 0, repo.lines[lines[0].ID].TotalReceived)
	require.Equal(t, LineStatusPending, repo.lines[lines[0].ID].Status)
	require.Equal(t, OrderStatusPlaced, repo.orders[order.ID].Status)
}

func TestReconcileRepairsDrift(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	order, lines := createOrder(t, svc, 100)

	_, err := svc.RecordDelivery(ctx, RecordDeliveryInput{LineItemID: lines[0].ID, ReceivedQty: 60})
	require.NoError(t, err)

	// corrupt the stored projection
	line := repo.lines[lines[0].ID]
	line.TotalReceived = 999
	line.Status = LineStatusComplete
	repo.lines[lines[0].ID] = line

	repaired, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repaired)
	require.Equal(t, 60, repo.lines[lines[0].ID].TotalReceived)
	require.Equal(t, LineStatusPartial, repo.lines[lines[0].ID].Status)
	require.Equal(t, OrderStatusPlaced, repo.orders[order.ID].Status)

	repaired, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, repaired, "clean state needs no repairs")
}

func TestSummary(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	order, lines := createOrder(t, svc, 100, 100)

	_, err := svc.RecordDelivery(ctx, RecordDeliveryInput{LineItemID: lines[0].ID, ReceivedQty: 50})
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 2, summary.TotalLineItems)
	require.Equal(t, 200, summary.TotalOrdered)
	require.Equal(t, 50, summary.TotalReceived)
	require.Equal(t, 25, summary.OverallCompletion)
}

func TestMatchLineItems(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	_, lines := createOrder(t, svc, 100)

	matches, err := svc.MatchLineItems(ctx, 800, 1200, 40)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, lines[0].ID, matches[0].ID)

	matches, err = svc.MatchLineItems(ctx, 800, 1200, 50)
	require.NoError(t, err)
	require.Empty(t, matches)

	_, err = svc.MatchLineItems(ctx, 0, 1200, 40)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestPendingDeliveries(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	_, lines := createOrder(t, svc, 100)

	pending, err := svc.PendingDeliveries(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 100, pending[0].Remaining)

	_, err = svc.RecordDelivery(ctx, RecordDeliveryInput{LineItemID: lines[0].ID, ReceivedQty: 100})
	require.NoError(t, err)
	pending, err = svc.PendingDeliveries(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}
