package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/embalage-erp/embalage-erp/internal/platform/db"
	"github.com/embalage-erp/embalage-erp/internal/shared"
)

// Repository persists production batches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("production repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const batchColumns = `id, client_order_id, batch_code, stage, planned_quantity, quantity_produced, COALESCE(notes,''), started_at, stage_updated_at, completed_at`

// GetBatch fetches a batch by id.
func (r *Repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM production_batches WHERE id=$1`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, fmt.Errorf("production: batch %d: %w", id, shared.ErrNotFound)
	}
	return batch, err
}

// ListBatchesByOrder returns the batches of a client order, oldest first.
func (r *Repository) ListBatchesByOrder(ctx context.Context, clientOrderID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM production_batches WHERE client_order_id=$1 ORDER BY started_at ASC, id ASC`, clientOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	batches := []Batch{}
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// ListStageHistory returns a batch's stage events, oldest first.
func (r *Repository) ListStageHistory(ctx context.Context, batchID int64) ([]StageEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, batch_id, from_stage, to_stage, quantity, COALESCE(note,''), moved_at
FROM batch_stage_events WHERE batch_id=$1 ORDER BY moved_at ASC, id ASC`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []StageEvent{}
	for rows.Next() {
		var e StageEvent
		if err := rows.Scan(&e.ID, &e.BatchID, &e.FromStage, &e.ToStage, &e.Quantity, &e.Note, &e.MovedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// BatchCodeExists reports whether a batch code is taken.
func (r *Repository) BatchCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM production_batches WHERE batch_code=$1)`, code).Scan(&exists)
	return exists, err
}

func (t *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO production_batches
(client_order_id, batch_code, stage, planned_quantity, quantity_produced, notes, started_at, stage_updated_at)
VALUES ($1,$2,$3,$4,0,NULLIF($5,''),$6,$7) RETURNING id`,
		batch.ClientOrderID, batch.BatchCode, batch.Stage, batch.PlannedQuantity, batch.Notes, batch.StartedAt, batch.StageUpdatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("production: batch code %s already used: %w", batch.BatchCode, shared.ErrConflict)
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepository) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM production_batches WHERE id=$1 FOR UPDATE`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, fmt.Errorf("production: batch %d: %w", id, shared.ErrNotFound)
	}
	return batch, err
}

func (t *txRepository) UpdateBatchStage(ctx context.Context, id int64, stage Stage, quantityProduced int, completedAt *time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE production_batches SET stage=$2, quantity_produced=$3, completed_at=$4, stage_updated_at=now() WHERE id=$1`,
		id, stage, quantityProduced, completedAt)
	return err
}

func (t *txRepository) InsertStageEvent(ctx context.Context, event StageEvent) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO batch_stage_events (batch_id, from_stage, to_stage, quantity, note, moved_at)
VALUES ($1,$2,$3,$4,NULLIF($5,''),$6)`,
		event.BatchID, event.FromStage, event.ToStage, event.Quantity, event.Note, event.MovedAt)
	return err
}

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.ClientOrderID, &b.BatchCode, &b.Stage, &b.PlannedQuantity, &b.QuantityProduced, &b.Notes, &b.StartedAt, &b.StageUpdatedAt, &b.CompletedAt)
	return b, err
}
