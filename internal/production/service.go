package production

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/embalage-erp/embalage-erp/internal/refs"
	"github.com/embalage-erp/embalage-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBatch(ctx context.Context, id int64) (Batch, error)
	ListBatchesByOrder(ctx context.Context, clientOrderID int64) ([]Batch, error)
	ListStageHistory(ctx context.Context, batchID int64) ([]StageEvent, error)
	BatchCodeExists(ctx context.Context, code string) (bool, error)
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	GetBatchForUpdate(ctx context.Context, id int64) (Batch, error)
	UpdateBatchStage(ctx context.Context, id int64, stage Stage, quantityProduced int, completedAt *time.Time) error
	InsertStageEvent(ctx context.Context, event StageEvent) error
}

// OrderCheckPort verifies client order references without importing the
// sales package.
type OrderCheckPort interface {
	OrderExists(ctx context.Context, clientOrderID int64) (bool, error)
}

// CodePort generates batch codes.
type CodePort interface {
	Unique(ctx context.Context, prefix string, exists refs.ExistsFunc) (string, error)
}

// Service drives batches through the workshop stages.
type Service struct {
	repo   RepositoryPort
	orders OrderCheckPort
	codes  CodePort
	audit  shared.AuditPort
	logger *slog.Logger
}

// NewService constructs the production service. codes and audit may be nil.
func NewService(repo RepositoryPort, orders OrderCheckPort, codes CodePort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, orders: orders, codes: codes, audit: audit, logger: logger}
}

// CreateBatchInput describes a new production run.
type CreateBatchInput struct {
	ClientOrderID   int64
	BatchCode       string
	PlannedQuantity int
	Notes           string
}

// AdvanceInput moves a batch to a later stage. Quantity is recorded on the
// stage event; when the target is READY it becomes the batch's produced
// quantity (defaulting to the planned quantity when zero).
type AdvanceInput struct {
	BatchID  int64
	To       Stage
	Quantity int
	Note     string
}

// CreateBatch opens a batch at CUTTING. A missing batch code is generated.
func (s *Service) CreateBatch(ctx context.Context, input CreateBatchInput) (Batch, error) {
	if input.PlannedQuantity <= 0 {
		return Batch{}, fmt.Errorf("production: planned quantity must be positive: %w", shared.ErrInvalidArgument)
	}
	if s.orders != nil {
		ok, err := s.orders.OrderExists(ctx, input.ClientOrderID)
		if err != nil {
			return Batch{}, err
		}
		if !ok {
			return Batch{}, fmt.Errorf("production: client order %d: %w", input.ClientOrderID, shared.ErrNotFound)
		}
	}
	if input.BatchCode == "" {
		if s.codes == nil {
			return Batch{}, fmt.Errorf("production: batch code required: %w", shared.ErrInvalidArgument)
		}
		code, err := s.codes.Unique(ctx, refs.PrefixBatch, s.repo.BatchCodeExists)
		if err != nil {
			return Batch{}, err
		}
		input.BatchCode = code
	} else {
		taken, err := s.repo.BatchCodeExists(ctx, input.BatchCode)
		if err != nil {
			return Batch{}, err
		}
		if taken {
			return Batch{}, fmt.Errorf("production: batch code %s already used: %w", input.BatchCode, shared.ErrConflict)
		}
	}

	now := time.Now()
	batch := Batch{
		ClientOrderID:   input.ClientOrderID,
		BatchCode:       input.BatchCode,
		Stage:           StageCutting,
		PlannedQuantity: input.PlannedQuantity,
		Notes:           input.Notes,
		StartedAt:       now,
		StageUpdatedAt:  now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		batch.ID = id
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, "BATCH_CREATE", batch.ID, map[string]any{"code": batch.BatchCode, "order": batch.ClientOrderID})
	return batch, nil
}

// AdvanceStage moves a batch forward. Jumps over unneeded stages are fine;
// moving backward or re-entering the current stage is a conflict. Reaching
// READY freezes the produced quantity and stamps completion.
func (s *Service) AdvanceStage(ctx context.Context, input AdvanceInput) (Batch, error) {
	if !input.To.Valid() {
		return Batch{}, fmt.Errorf("production: unknown stage %q: %w", input.To, shared.ErrInvalidArgument)
	}
	if input.Quantity < 0 {
		return Batch{}, fmt.Errorf("production: negative quantity: %w", shared.ErrInvalidArgument)
	}

	var batch Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBatchForUpdate(ctx, input.BatchID)
		if err != nil {
			return err
		}
		if !CanAdvance(current.Stage, input.To) {
			return fmt.Errorf("production: batch %s cannot move %s -> %s: %w", current.BatchCode, current.Stage, input.To, shared.ErrConflict)
		}

		produced := current.QuantityProduced
		var completedAt *time.Time
		if input.To == StageReady {
			produced = input.Quantity
			if produced == 0 {
				produced = current.PlannedQuantity
			}
			now := time.Now()
			completedAt = &now
		}
		if err := tx.UpdateBatchStage(ctx, current.ID, input.To, produced, completedAt); err != nil {
			return err
		}
		if err := tx.InsertStageEvent(ctx, StageEvent{
			BatchID:   current.ID,
			FromStage: current.Stage,
			ToStage:   input.To,
			Quantity:  input.Quantity,
			Note:      input.Note,
			MovedAt:   time.Now(),
		}); err != nil {
			return err
		}
		batch = current
		batch.Stage = input.To
		batch.QuantityProduced = produced
		batch.CompletedAt = completedAt
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, "BATCH_ADVANCE", batch.ID, map[string]any{"code": batch.BatchCode, "stage": string(batch.Stage)})
	return batch, nil
}

// ResetStage returns a batch to CUTTING for rework. READY batches are frozen
// and cannot be reset.
func (s *Service) ResetStage(ctx context.Context, batchID int64, note string) (Batch, error) {
	var batch Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if current.Done() {
			return fmt.Errorf("production: batch %s already ready: %w", current.BatchCode, shared.ErrConflict)
		}
		if current.Stage == StageCutting {
			return fmt.Errorf("production: batch %s already at %s: %w", current.BatchCode, StageCutting, shared.ErrConflict)
		}
		if err := tx.UpdateBatchStage(ctx, current.ID, StageCutting, current.QuantityProduced, nil); err != nil {
			return err
		}
		if err := tx.InsertStageEvent(ctx, StageEvent{
			BatchID:   current.ID,
			FromStage: current.Stage,
			ToStage:   StageCutting,
			Note:      note,
			MovedAt:   time.Now(),
		}); err != nil {
			return err
		}
		batch = current
		batch.Stage = StageCutting
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, "BATCH_RESET", batch.ID, map[string]any{"code": batch.BatchCode})
	return batch, nil
}

// GetBatch fetches a batch.
func (s *Service) GetBatch(ctx context.Context, id int64) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// OrderBatches lists batches of a client order.
func (s *Service) OrderBatches(ctx context.Context, clientOrderID int64) ([]Batch, error) {
	return s.repo.ListBatchesByOrder(ctx, clientOrderID)
}

// StageHistory returns a batch's stage events, oldest first.
func (s *Service) StageHistory(ctx context.Context, batchID int64) ([]StageEvent, error) {
	if _, err := s.repo.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.repo.ListStageHistory(ctx, batchID)
}

// OrderProgress reports whether all batches of an order reached READY and
// how many exist. Orders without batches report done=false.
func (s *Service) OrderProgress(ctx context.Context, clientOrderID int64) (done bool, total int, err error) {
	batches, err := s.repo.ListBatchesByOrder(ctx, clientOrderID)
	if err != nil {
		return false, 0, err
	}
	if len(batches) == 0 {
		return false, 0, nil
	}
	for _, b := range batches {
		if !b.Done() {
			return false, len(batches), nil
		}
	}
	return true, len(batches), nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "production", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
