package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/embalage-erp/embalage-erp/internal/platform/db"
	"github.com/embalage-erp/embalage-erp/internal/shared"
)

// Repository persists archived transactions and snapshots the live workflow
// tables. Snapshot and restore run plain SQL against the same database the
// domain repositories use, so one transaction covers both sides.
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
		return errors.New("archive repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// childTable describes a dependent table captured with a parent record. The
// where clause filters by the parent id ($1).
type childTable struct {
	table string
	where string
}

// kindSpec declares the table closure archived with each kind. pre holds
// tables the parent has foreign keys into; they are restored before the
// parent and deleted after it. children are restored in declaration order
// and deleted in reverse, so each where-subquery still resolves while its
// referenced rows exist.
type kindSpec struct {
	parent    string
	refCol    string
	clientCol string
	pre       []childTable
	children  []childTable
}

var kindSpecs = map[Kind]kindSpec{
	KindQuotation: {
		parent:    "quotations",
		refCol:    "reference",
		clientCol: "client_id",
		children:  []childTable{{"quotation_lines", "quotation_id=$1"}},
	},
	// KindClientOrder captures the whole transaction aggregate: the order,
	// its source quotation, every supplier order placed on its behalf with
	// the full delivery ledger, and the production batch with its stage
	// history. One snapshot, one restore.
	KindClientOrder: {
		parent:    "client_orders",
		refCol:    "reference",
		clientCol: "client_id",
		pre: []childTable{
			{"quotations", "id IN (SELECT quotation_id FROM client_orders WHERE id=$1)"},
			{"quotation_lines", "quotation_id IN (SELECT quotation_id FROM client_orders WHERE id=$1)"},
		},
		children: []childTable{
			{"client_order_lines", "client_order_id=$1"},
			{"supplier_orders", "client_order_id=$1"},
			{"supplier_order_lines", "supplier_order_id IN (SELECT id FROM supplier_orders WHERE client_order_id=$1)"},
			{"material_deliveries", "line_item_id IN (SELECT id FROM supplier_order_lines WHERE supplier_order_id IN (SELECT id FROM supplier_orders WHERE client_order_id=$1))"},
			{"material_returns", "supplier_order_id IN (SELECT id FROM supplier_orders WHERE client_order_id=$1)"},
			{"production_batches", "client_order_id=$1"},
			{"batch_stage_events", "batch_id IN (SELECT id FROM production_batches WHERE client_order_id=$1)"},
		},
	},
	// KindSupplierOrder and KindProductionBatch archive stray records that
	// are not tied to a client order aggregate.
	KindSupplierOrder: {
		parent: "supplier_orders",
		refCol: "reference",
		children: []childTable{
			{"supplier_order_lines", "supplier_order_id=$1"},
			{"material_deliveries", "line_item_id IN (SELECT id FROM supplier_order_lines WHERE supplier_order_id=$1)"},
			{"material_returns", "supplier_order_id=$1"},
		},
	},
	KindProductionBatch: {
		parent:   "production_batches",
		refCol:   "batch_code",
		children: []childTable{{"batch_stage_events", "batch_id=$1"}},
	},
}

const archivedColumns = `id, kind, source_id, reference, COALESCE(client_id,0), COALESCE(summary,''), snapshot, archived_at, restored_at`

// GetArchived fetches one archived record.
func (r *Repository) GetArchived(ctx context.Context, id uuid.UUID) (ArchivedTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+archivedColumns+` FROM archived_transactions WHERE id=$1`, id)
	at, err := scanArchived(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ArchivedTransaction{}, fmt.Errorf("archive: %s: %w", id, shared.ErrNotFound)
	}
	return at, err
}

// ListArchived returns archived records, newest first. Empty kind lists all.
func (r *Repository) ListArchived(ctx context.Context, kind Kind) ([]ArchivedTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+archivedColumns+` FROM archived_transactions
WHERE ($1 = '' OR kind = $1) ORDER BY archived_at DESC`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	archived := []ArchivedTransaction{}
	for rows.Next() {
		at, err := scanArchived(rows)
		if err != nil {
			return nil, err
		}
		archived = append(archived, at)
	}
	return archived, rows.Err()
}

// Snapshot captures the parent row and every dependent row as JSONB.
func (t *txRepository) Snapshot(ctx context.Context, kind Kind, sourceID int64) (json.RawMessage, SnapshotInfo, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return nil, SnapshotInfo{}, fmt.Errorf("archive: unknown kind %q: %w", kind, shared.ErrInvalidArgument)
	}

	var record json.RawMessage
	err := t.tx.QueryRow(ctx, fmt.Sprintf(`SELECT to_jsonb(p) FROM %s p WHERE id=$1`, spec.parent), sourceID).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, SnapshotInfo{}, fmt.Errorf("archive: %s %d: %w", spec.parent, sourceID, shared.ErrNotFound)
		}
		return nil, SnapshotInfo{}, err
	}

	children := map[string]json.RawMessage{}
	for _, child := range append(append([]childTable{}, spec.pre...), spec.children...) {
		var rows json.RawMessage
		query := fmt.Sprintf(`SELECT COALESCE(jsonb_agg(c), '[]'::jsonb) FROM %s c WHERE %s`, child.table, child.where)
		if err := t.tx.QueryRow(ctx, query, sourceID).Scan(&rows); err != nil {
			return nil, SnapshotInfo{}, err
		}
		children[child.table] = rows
	}

	snapshot, err := json.Marshal(map[string]any{"record": record, "children": children})
	if err != nil {
		return nil, SnapshotInfo{}, err
	}

	info, err := t.snapshotInfo(spec, record)
	if err != nil {
		return nil, SnapshotInfo{}, err
	}
	return snapshot, info, nil
}

func (t *txRepository) snapshotInfo(spec kindSpec, record json.RawMessage) (SnapshotInfo, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(record, &fields); err != nil {
		return SnapshotInfo{}, err
	}
	var info SnapshotInfo
	if raw, ok := fields[spec.refCol]; ok {
		_ = json.Unmarshal(raw, &info.Reference)
	}
	if spec.clientCol != "" {
		if raw, ok := fields[spec.clientCol]; ok {
			_ = json.Unmarshal(raw, &info.ClientID)
		}
	}
	info.Summary = fmt.Sprintf("%s %s", spec.parent, info.Reference)
	return info, nil
}

// DeleteLive removes the parent record and its children from the live tables.
func (t *txRepository) DeleteLive(ctx context.Context, kind Kind, sourceID int64) error {
	spec, ok := kindSpecs[kind]
	if !ok {
		return fmt.Errorf("archive: unknown kind %q: %w", kind, shared.ErrInvalidArgument)
	}
	// pre-table where clauses resolve through the parent row, so collect the
	// ids before it is deleted; the rows themselves go last because the
	// parent holds foreign keys into them.
	preIDs := make([][]int64, len(spec.pre))
	for i, pre := range spec.pre {
		rows, err := t.tx.Query(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE %s`, pre.table, pre.where), sourceID)
		if err != nil {
			return err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return err
		}
		preIDs[i] = ids
	}
	// children in reverse declaration order
	for i := len(spec.children) - 1; i >= 0; i-- {
		child := spec.children[i]
		if _, err := t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, child.table, child.where), sourceID); err != nil {
			return err
		}
	}
	if _, err := t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, spec.parent), sourceID); err != nil {
		return mapDeleteError(err, spec.parent)
	}
	for i := len(spec.pre) - 1; i >= 0; i-- {
		if _, err := t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, spec.pre[i].table), preIDs[i]); err != nil {
			return mapDeleteError(err, spec.pre[i].table)
		}
	}
	return nil
}

// RestoreLive reinserts a snapshot into the live tables with its original
// primary keys.
func (t *txRepository) RestoreLive(ctx context.Context, kind Kind, snapshot json.RawMessage) error {
	spec, ok := kindSpecs[kind]
	if !ok {
		return fmt.Errorf("archive: unknown kind %q: %w", kind, shared.ErrInvalidArgument)
	}
	var parsed struct {
		Record   json.RawMessage            `json:"record"`
		Children map[string]json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(snapshot, &parsed); err != nil {
		return err
	}

	// pre tables first so the parent's foreign keys resolve on insert
	for _, pre := range spec.pre {
		rows, ok := parsed.Children[pre.table]
		if !ok {
			continue
		}
		query := fmt.Sprintf(`INSERT INTO %s SELECT * FROM jsonb_populate_recordset(NULL::%s, $1)`, pre.table, pre.table)
		if _, err := t.tx.Exec(ctx, query, rows); err != nil {
			return mapRestoreError(err, pre.table)
		}
	}
	query := fmt.Sprintf(`INSERT INTO %s SELECT * FROM jsonb_populate_record(NULL::%s, $1)`, spec.parent, spec.parent)
	if _, err := t.tx.Exec(ctx, query, parsed.Record); err != nil {
		return mapRestoreError(err, spec.parent)
	}
	for _, child := range spec.children {
		rows, ok := parsed.Children[child.table]
		if !ok {
			continue
		}
		query := fmt.Sprintf(`INSERT INTO %s SELECT * FROM jsonb_populate_recordset(NULL::%s, $1)`, child.table, child.table)
		if _, err := t.tx.Exec(ctx, query, rows); err != nil {
			return mapRestoreError(err, child.table)
		}
	}
	return nil
}

func (t *txRepository) InsertArchived(ctx context.Context, at ArchivedTransaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO archived_transactions (id, kind, source_id, reference, client_id, summary, snapshot, archived_at)
VALUES ($1,$2,$3,$4,NULLIF($5,0),NULLIF($6,''),$7,$8)`,
		at.ID, at.Kind, at.SourceID, at.Reference, at.ClientID, at.Summary, at.Snapshot, at.ArchivedAt)
	return err
}

func (t *txRepository) GetArchivedForUpdate(ctx context.Context, id uuid.UUID) (ArchivedTransaction, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+archivedColumns+` FROM archived_transactions WHERE id=$1 FOR UPDATE`, id)
	at, err := scanArchived(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ArchivedTransaction{}, fmt.Errorf("archive: %s: %w", id, shared.ErrNotFound)
	}
	return at, err
}

func (t *txRepository) MarkRestored(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE archived_transactions SET restored_at=$2 WHERE id=$1`, id, at)
	return err
}

func scanArchived(row pgx.Row) (ArchivedTransaction, error) {
	var at ArchivedTransaction
	err := row.Scan(&at.ID, &at.Kind, &at.SourceID, &at.Reference, &at.ClientID, &at.Summary, &at.Snapshot, &at.ArchivedAt, &at.RestoredAt)
	return at, err
}

func mapRestoreError(err error, table string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("archive: id already taken in %s: %w", table, shared.ErrConflict)
	}
	return err
}

// mapDeleteError turns a foreign-key violation on archive deletion into a
// conflict: some live record outside the aggregate still references the row.
func mapDeleteError(err error, table string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("archive: %s still referenced by a live record: %w", table, shared.ErrConflict)
	}
	return err
}
