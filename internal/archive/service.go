package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/embalage-erp/embalage-erp/internal/shared"
)

// SnapshotInfo is the denormalised header extracted while snapshotting.
type SnapshotInfo struct {
	Reference string
	ClientID  int64
	Summary   string
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetArchived(ctx context.Context, id uuid.UUID) (ArchivedTransaction, error)
	ListArchived(ctx context.Context, kind Kind) ([]ArchivedTransaction, error)
}

// TxRepository exposes transactional operations used by Service. Snapshot and
// restore touch the live domain tables, so the whole archive or restore is one
// database transaction.
type TxRepository interface {
	Snapshot(ctx context.Context, kind Kind, sourceID int64) (json.RawMessage, SnapshotInfo, error)
	DeleteLive(ctx context.Context, kind Kind, sourceID int64) error
	RestoreLive(ctx context.Context, kind Kind, snapshot json.RawMessage) error
	InsertArchived(ctx context.Context, at ArchivedTransaction) error
	GetArchivedForUpdate(ctx context.Context, id uuid.UUID) (ArchivedTransaction, error)
	MarkRestored(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Service archives and restores workflow records.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditPort
	logger *slog.Logger
}

// NewService constructs the archive service. audit may be nil.
func NewService(repo RepositoryPort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Archive snapshots a live record with its children and removes it from the
// live tables, all in one transaction. A reader sees the record either live
// or archived, never both and never neither.
func (s *Service) Archive(ctx context.Context, kind Kind, sourceID int64) (ArchivedTransaction, error) {
	if !kind.Valid() {
		return ArchivedTransaction{}, fmt.Errorf("archive: unknown kind %q: %w", kind, shared.ErrInvalidArgument)
	}
	archived := ArchivedTransaction{
		ID:         uuid.New(),
		Kind:       kind,
		SourceID:   sourceID,
		ArchivedAt: time.Now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		snapshot, info, err := tx.Snapshot(ctx, kind, sourceID)
		if err != nil {
			return err
		}
		archived.Snapshot = snapshot
		archived.Reference = info.Reference
		archived.ClientID = info.ClientID
		archived.Summary = info.Summary
		if err := tx.InsertArchived(ctx, archived); err != nil {
			return err
		}
		return tx.DeleteLive(ctx, kind, sourceID)
	})
	if err != nil {
		return ArchivedTransaction{}, err
	}
	s.recordAudit(ctx, "ARCHIVE", archived)
	return archived, nil
}

// Restore puts an archived record back into the live tables. The snapshot
// keeps the original primary keys, so restoring collides with any record
// created under the same id in the meantime; that collision surfaces as a
// conflict rather than silently renumbering history.
func (s *Service) Restore(ctx context.Context, id uuid.UUID) (ArchivedTransaction, error) {
	var archived ArchivedTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetArchivedForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Restored() {
			return fmt.Errorf("archive: %s already restored: %w", current.Reference, shared.ErrConflict)
		}
		if err := tx.RestoreLive(ctx, current.Kind, current.Snapshot); err != nil {
			return err
		}
		now := time.Now()
		if err := tx.MarkRestored(ctx, id, now); err != nil {
			return err
		}
		current.RestoredAt = &now
		archived = current
		return nil
	})
	if err != nil {
		return ArchivedTransaction{}, err
	}
	s.recordAudit(ctx, "RESTORE", archived)
	return archived, nil
}

// Get fetches one archived record with its snapshot.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ArchivedTransaction, error) {
	return s.repo.GetArchived(ctx, id)
}

// List returns archived records, optionally filtered by kind (empty kind
// means all), newest first.
func (s *Service) List(ctx context.Context, kind Kind) ([]ArchivedTransaction, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("archive: unknown kind %q: %w", kind, shared.ErrInvalidArgument)
	}
	return s.repo.ListArchived(ctx, kind)
}

func (s *Service) recordAudit(ctx context.Context, action string, at ArchivedTransaction) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "archive",
		EntityID: at.ID.String(),
		Meta:     map[string]any{"kind": string(at.Kind), "reference": at.Reference, "source": at.SourceID},
	})
}
