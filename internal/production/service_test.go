package production

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/embalage-erp/embalage-erp/internal/refs"
	"github.com/embalage-erp/embalage-erp/internal/shared"
)

type memoryRepo struct {
	batches map[int64]Batch
	events  []StageEvent
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{batches: map[int64]Batch{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) GetBatch(_ context.Context, id int64) (Batch, error) {
	batch, ok := m.batches[id]
	if !ok {
		return Batch{}, fmt.Errorf("batch %d: %w", id, shared.ErrNotFound)
	}
	return batch, nil
}

func (m *memoryRepo) ListBatchesByOrder(_ context.Context, clientOrderID int64) ([]Batch, error) {
	var out []Batch
	for _, b := range m.batches {
		if b.ClientOrderID == clientOrderID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListStageHistory(_ context.Context, batchID int64) ([]StageEvent, error) {
	var out []StageEvent
	for _, e := range m.events {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryRepo) BatchCodeExists(_ context.Context, code string) (bool, error) {
	for _, b := range m.batches {
		if b.BatchCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	taken, _ := m.BatchCodeExists(ctx, batch.BatchCode)
	if taken {
		return 0, fmt.Errorf("batch code %s already used: %w", batch.BatchCode, shared.ErrConflict)
	}
	m.nextID++
	batch.ID = m.nextID
	m.batches[batch.ID] = batch
	return batch.ID, nil
}

func (m *memoryRepo) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	return m.GetBatch(ctx, id)
}

func (m *memoryRepo) UpdateBatchStage(_ context.Context, id int64, stage Stage, quantityProduced int, completedAt *time.Time) error {
	batch := m.batches[id]
	batch.Stage = stage
	batch.QuantityProduced = quantityProduced
	batch.CompletedAt = completedAt
	batch.StageUpdatedAt = time.Now()
	m.batches[id] = batch
	return nil
}

func (m *memoryRepo) InsertStageEvent(_ context.Context, event StageEvent) error {
	event.ID = int64(len(m.events) + 1)
	m.events = append(m.events, event)
	return nil
}

type allOrders struct{}

func (allOrders) OrderExists(context.Context, int64) (bool, error) { return true, nil }

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, allOrders{}, refs.NewGenerator(nil), nil, nil)
}

func TestCreateBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	batch, err := svc.CreateBatch(context.Background(), CreateBatchInput{ClientOrderID: 1, PlannedQuantity: 500})
	require.NoError(t, err)
	require.Equal(t, StageCutting, batch.Stage)
	require.Regexp(t, `^PD-[0-9A-F]{6}$`, batch.BatchCode)
	require.Equal(t, 0, batch.QuantityProduced)
}

func TestCreateBatchDuplicateCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.CreateBatch(context.Background(), CreateBatchInput{ClientOrderID: 1, BatchCode: "PD-AA11BB", PlannedQuantity: 100})
	require.NoError(t, err)
	_, err = svc.CreateBatch(context.Background(), CreateBatchInput{ClientOrderID: 1, BatchCode: "PD-AA11BB", PlannedQuantity: 100})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestAdvanceStage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	batch, err := svc.CreateBatch(ctx, CreateBatchInput{ClientOrderID: 1, PlannedQuantity: 500})
	require.NoError(t, err)

	moved, err := svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: StageGluing})
	require.NoError(t, err)
	require.Equal(t, StageGluing, moved.Stage)

	// unprinted boxes skip PRINTING
	moved, err = svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: StageFinishing})
	require.NoError(t, err)
	require.Equal(t, StageFinishing, moved.Stage)

	_, err = svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: StageGluing})
	require.ErrorIs(t, err, shared.ErrConflict, "backward move rejected")

	_, err = svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: StageFinishing})
	require.ErrorIs(t, err, shared.ErrConflict, "re-entering the current stage rejected")

	_, err = svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: Stage("PACKING")})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestAdvanceToReadyFreezesQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	batch, err := svc.CreateBatch(ctx, CreateBatchInput{ClientOrderID: 1, PlannedQuantity: 500})
	require.NoError(t, err)

	done, err := svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: StageReady, Quantity: 480})
	require.NoError(t, err)
	require.Equal(t, StageReady, done.Stage)
	require.Equal(t, 480, done.QuantityProduced)
	require.NotNil(t, done.CompletedAt)

	_, err = svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: StageReady})
	require.ErrorIs(t, err, shared.ErrConflict, "READY is terminal")
}

func TestAdvanceToReadyDefaultsToPlanned(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	batch, err := svc.CreateBatch(ctx, CreateBatchInput{ClientOrderID: 1, PlannedQuantity: 300})
	require.NoError(t, err)

	done, err := svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: StageReady})
	require.NoError(t, err)
	require.Equal(t, 300, done.QuantityProduced)
}

func TestAdvanceUnknownBatchNoSideEffect(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.AdvanceStage(context.Background(), AdvanceInput{BatchID: 404, To: StageGluing})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.events)
}

func TestResetStage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	batch, err := svc.CreateBatch(ctx, CreateBatchInput{ClientOrderID: 1, PlannedQuantity: 500})
	require.NoError(t, err)

	_, err = svc.ResetStage(ctx, batch.ID, "rework")
	require.ErrorIs(t, err, shared.ErrConflict, "already at CUTTING")

	_, err = svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: StageQualityCheck})
	require.NoError(t, err)
	reset, err := svc.ResetStage(ctx, batch.ID, "print defects")
	require.NoError(t, err)
	require.Equal(t, StageCutting, reset.Stage)

	_, err = svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: StageReady})
	require.NoError(t, err)
	_, err = svc.ResetStage(ctx, batch.ID, "too late")
	require.ErrorIs(t, err, shared.ErrConflict, "READY batches are frozen")
}

func TestStageHistory(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	batch, err := svc.CreateBatch(ctx, CreateBatchInput{ClientOrderID: 1, PlannedQuantity: 500})
	require.NoError(t, err)

	_, err = svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: StageGluing})
	require.NoError(t, err)
	_, err = svc.AdvanceStage(ctx, AdvanceInput{BatchID: batch.ID, To: StageReady, Quantity: 500})
	require.NoError(t, err)

	events, err := svc.StageHistory(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, StageCutting, events[0].FromStage)
	require.Equal(t, StageGluing, events[0].ToStage)
	require.Equal(t, StageReady, events[1].ToStage)

	_, err = svc.StageHistory(ctx, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOrderProgress(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	done, total, err := svc.OrderProgress(ctx, 9)
	require.NoError(t, err)
	require.False(t, done, "orders without batches are not done")
	require.Zero(t, total)

	first, err := svc.CreateBatch(ctx, CreateBatchInput{ClientOrderID: 9, PlannedQuantity: 100})
	require.NoError(t, err)
	second, err := svc.CreateBatch(ctx, CreateBatchInput{ClientOrderID: 9, PlannedQuantity: 200})
	require.NoError(t, err)

	_, err = svc.AdvanceStage(ctx, AdvanceInput{BatchID: first.ID, To: StageReady})
	require.NoError(t, err)
	done, total, err = svc.OrderProgress(ctx, 9)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, 2, total)

	_, err = svc.AdvanceStage(ctx, AdvanceInput{BatchID: second.ID, To: StageReady})
	require.NoError(t, err)
	done, _, err = svc.OrderProgress(ctx, 9)
	require.NoError(t, err)
	require.True(t, done)
}
