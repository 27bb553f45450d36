package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/embalage-erp/embalage-erp/internal/platform/db"
	"github.com/embalage-erp/embalage-erp/internal/shared"
)

// Repository persists supplier orders, line items and the delivery ledger in
// PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	CreateOrder(ctx context.Context, order SupplierOrder) (int64, error)
	InsertLineItem(ctx context.Context, line LineItem) (int64, error)
	GetOrderHeader(ctx context.Context, orderID int64) (SupplierOrder, error)
	ListLines(ctx context.Context, orderID int64) ([]LineItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus, confirmed bool) error
	InsertDelivery(ctx context.Context, delivery MaterialDelivery) (int64, error)
	InsertReturn(ctx context.Context, ret Return) (int64, error)
	SumLineDeliveries(ctx context.Context, lineItemID int64) (int, error)
	SumLineReturns(ctx context.Context, lineItemID int64) (int, error)
	CountOrderDeliveries(ctx context.Context, orderID int64) (int, error)
	UpdateLineDerived(ctx context.Context, lineItemID int64, totalReceived int, status LineStatus) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `id, supplier_id, COALESCE(client_order_id,0), reference, order_date, status, confirmed, currency, COALESCE(notes,''), created_at`

const lineColumns = `id, supplier_order_id, client_id, line_number, COALESCE(article_code,''),
caisse_length_mm, caisse_width_mm, caisse_height_mm,
plaque_width_mm, plaque_length_mm, plaque_flap_mm,
unit_price, ordered_quantity, total_received, status, COALESCE(cardboard_type,''), COALESCE(notes,'')`

// GetOrder fetches an order and its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (SupplierOrder, []LineItem, error) {
	var order SupplierOrder
	err := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM supplier_orders WHERE id=$1`, id).
		Scan(&order.ID, &order.SupplierID, &order.ClientOrderID, &order.Reference, &order.OrderDate, &order.Status, &order.Confirmed, &order.Currency, &order.Notes, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplierOrder{}, nil, fmt.Errorf("procurement: supplier order %d: %w", id, shared.ErrNotFound)
		}
		return SupplierOrder{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` FROM supplier_order_lines WHERE supplier_order_id=$1 ORDER BY line_number`, id)
	if err != nil {
		return SupplierOrder{}, nil, err
	}
	defer rows.Close()
	lines, err := scanLines(rows)
	if err != nil {
		return SupplierOrder{}, nil, err
	}
	return order, lines, nil
}

// GetLineItem fetches a single line item.
func (r *Repository) GetLineItem(ctx context.Context, id int64) (LineItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+lineColumns+` FROM supplier_order_lines WHERE id=$1`, id)
	line, err := scanLine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineItem{}, fmt.Errorf("procurement: line item %d: %w", id, shared.ErrNotFound)
		}
		return LineItem{}, err
	}
	return line, nil
}

// ListLineDeliveries returns the reception history of a line item, oldest
// first.
func (r *Repository) ListLineDeliveries(ctx context.Context, lineItemID int64) ([]MaterialDelivery, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, line_item_id, delivery_date, received_qty, COALESCE(batch_reference,''), COALESCE(quality_notes,''), created_at
FROM material_deliveries WHERE line_item_id=$1 ORDER BY delivery_date ASC, id ASC`, lineItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	deliveries := []MaterialDelivery{}
	for rows.Next() {
		var d MaterialDelivery
		if err := rows.Scan(&d.ID, &d.LineItemID, &d.DeliveryDate, &d.ReceivedQty, &d.BatchReference, &d.QualityNotes, &d.CreatedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// ListOrderReturns returns all returns recorded against an order.
func (r *Repository) ListOrderReturns(ctx context.Context, orderID int64) ([]Return, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, supplier_order_id, line_item_id, return_date, quantity, COALESCE(reason,'')
FROM material_returns WHERE supplier_order_id=$1 ORDER BY return_date ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	returns := []Return{}
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.SupplierOrderID, &ret.LineItemID, &ret.ReturnDate, &ret.Quantity, &ret.Reason); err != nil {
			return nil, err
		}
		returns = append(returns, ret)
	}
	return returns, rows.Err()
}

// ListPendingLines returns lines that still await material across non-arrived
// orders.
func (r *Repository) ListPendingLines(ctx context.Context) ([]PendingLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.supplier_order_id, o.reference, COALESCE(l.article_code,''), l.ordered_quantity, l.total_received, l.status
FROM supplier_order_lines l
JOIN supplier_orders o ON o.id = l.supplier_order_id
WHERE l.status <> 'COMPLETE' AND o.status <> 'ARRIVED'
ORDER BY o.order_date ASC, l.line_number ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pending := []PendingLine{}
	for rows.Next() {
		var p PendingLine
		if err := rows.Scan(&p.LineItemID, &p.SupplierOrderID, &p.Reference, &p.ArticleCode, &p.Ordered, &p.Received, &p.Status); err != nil {
			return nil, err
		}
		p.Remaining = p.Ordered - p.Received
		if p.Remaining < 0 {
			p.Remaining = 0
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// FindLinesByPlaque finds open lines matching exact plaque dimensions.
func (r *Repository) FindLinesByPlaque(ctx context.Context, widthMM, lengthMM, flapMM int) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` FROM supplier_order_lines
WHERE plaque_width_mm=$1 AND plaque_length_mm=$2 AND plaque_flap_mm=$3 AND status <> 'COMPLETE'
ORDER BY id`, widthMM, lengthMM, flapMM)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

// ListOrderIDs returns every supplier order id, oldest first.
func (r *Repository) ListOrderIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM supplier_orders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReferenceExists reports whether a supplier order reference is taken.
func (r *Repository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM supplier_orders WHERE reference=$1)`, reference).Scan(&exists)
	return exists, err
}

func (t *txRepository) CreateOrder(ctx context.Context, order SupplierOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO supplier_orders (supplier_id, client_order_id, reference, order_date, status, confirmed, currency, notes)
VALUES ($1,NULLIF($2,0),$3,$4,$5,$6,$7,NULLIF($8,'')) RETURNING id`,
		order.SupplierID, order.ClientOrderID, order.Reference, order.OrderDate, order.Status, order.Confirmed, order.Currency, order.Notes).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, fmt.Errorf("procurement: client order %d: %w", order.ClientOrderID, shared.ErrInvalidArgument)
		}
		return 0, mapUniqueViolation(err, fmt.Sprintf("reference %s already used", order.Reference))
	}
	return id, nil
}

func (t *txRepository) InsertLineItem(ctx context.Context, line LineItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO supplier_order_lines
(supplier_order_id, client_id, line_number, article_code, caisse_length_mm, caisse_width_mm, caisse_height_mm,
 plaque_width_mm, plaque_length_mm, plaque_flap_mm, unit_price, ordered_quantity, total_received, status, cardboard_type, notes)
VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11,$12,0,$13,NULLIF($14,''),NULLIF($15,'')) RETURNING id`,
		line.SupplierOrderID, line.ClientID, line.LineNumber, line.ArticleCode,
		line.CaisseLengthMM, line.CaisseWidthMM, line.CaisseHeightMM,
		line.PlaqueWidthMM, line.PlaqueLengthMM, line.PlaqueFlapMM,
		line.UnitPrice, line.OrderedQuantity, line.Status, line.CardboardType, line.Notes).Scan(&id)
	return id, err
}

func (t *txRepository) GetOrderHeader(ctx context.Context, orderID int64) (SupplierOrder, error) {
	var order SupplierOrder
	err := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM supplier_orders WHERE id=$1 FOR UPDATE`, orderID).
		Scan(&order.ID, &order.SupplierID, &order.ClientOrderID, &order.Reference, &order.OrderDate, &order.Status, &order.Confirmed, &order.Currency, &order.Notes, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SupplierOrder{}, fmt.Errorf("procurement: supplier order %d: %w", orderID, shared.ErrNotFound)
	}
	return order, err
}

func (t *txRepository) ListLines(ctx context.Context, orderID int64) ([]LineItem, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+lineColumns+` FROM supplier_order_lines WHERE supplier_order_id=$1 ORDER BY line_number`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

func (t *txRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus, confirmed bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE supplier_orders SET status=$2, confirmed=$3 WHERE id=$1`, orderID, status, confirmed)
	return err
}

func (t *txRepository) InsertDelivery(ctx context.Context, delivery MaterialDelivery) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO material_deliveries (line_item_id, delivery_date, received_qty, batch_reference, quality_notes)
VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,'')) RETURNING id`,
		delivery.LineItemID, delivery.DeliveryDate, delivery.ReceivedQty, delivery.BatchReference, delivery.QualityNotes).Scan(&id)
	return id, err
}

func (t *txRepository) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO material_returns (supplier_order_id, line_item_id, return_date, quantity, reason)
VALUES ($1,$2,$3,$4,NULLIF($5,'')) RETURNING id`,
		ret.SupplierOrderID, ret.LineItemID, ret.ReturnDate, ret.Quantity, ret.Reason).Scan(&id)
	return id, err
}

func (t *txRepository) SumLineDeliveries(ctx context.Context, lineItemID int64) (int, error) {
	var total int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(received_qty),0) FROM material_deliveries WHERE line_item_id=$1`, lineItemID).Scan(&total)
	return total, err
}

func (t *txRepository) SumLineReturns(ctx context.Context, lineItemID int64) (int, error) {
	var total int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity),0) FROM material_returns WHERE line_item_id=$1`, lineItemID).Scan(&total)
	return total, err
}

func (t *txRepository) CountOrderDeliveries(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM material_deliveries d
JOIN supplier_order_lines l ON l.id = d.line_item_id
WHERE l.supplier_order_id=$1`, orderID).Scan(&count)
	return count, err
}

func (t *txRepository) UpdateLineDerived(ctx context.Context, lineItemID int64, totalReceived int, status LineStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE supplier_order_lines SET total_received=$2, status=$3 WHERE id=$1`, lineItemID, totalReceived, status)
	return err
}

func scanLines(rows pgx.Rows) ([]LineItem, error) {
	lines := []LineItem{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanLine(row pgx.Row) (LineItem, error) {
	var line LineItem
	err := row.Scan(&line.ID, &line.SupplierOrderID, &line.ClientID, &line.LineNumber, &line.ArticleCode,
		&line.CaisseLengthMM, &line.CaisseWidthMM, &line.CaisseHeightMM,
		&line.PlaqueWidthMM, &line.PlaqueLengthMM, &line.PlaqueFlapMM,
		&line.UnitPrice, &line.OrderedQuantity, &line.TotalReceived, &line.Status, &line.CardboardType, &line.Notes)
	return line, err
}

func mapUniqueViolation(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("procurement: %s: %w", msg, shared.ErrConflict)
	}
	return err
}
