package sales

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

// Repository persists quotations and client orders in PostgreSQL.
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
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const quotationColumns = `id, reference, client_id, status, is_initial, COALESCE(predecessor_id,0), issue_date, valid_until, currency, COALESCE(notes,''), created_at`

const quotationLineColumns = `id, quotation_id, line_number, COALESCE(description,''),
caisse_length_mm, caisse_width_mm, caisse_height_mm, COALESCE(cardboard_type,''), print_colors,
COALESCE(quantity,''), numeric_quantity, unit_price`

const orderColumns = `id, reference, quotation_id, client_id, order_date, currency, COALESCE(notes,''), created_at`

const orderLineColumns = `id, client_order_id, line_number, COALESCE(description,''),
caisse_length_mm, caisse_width_mm, caisse_height_mm, COALESCE(cardboard_type,''), print_colors,
COALESCE(quantity,''), numeric_quantity, unit_price`

// GetQuotation fetches a quotation and its lines.
func (r *Repository) GetQuotation(ctx context.Context, id int64) (Quotation, []QuotationLine, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id=$1`, id)
	quotation, err := scanQuotation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, nil, fmt.Errorf("sales: quotation %d: %w", id, shared.ErrNotFound)
		}
		return Quotation{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+quotationLineColumns+` FROM quotation_lines WHERE quotation_id=$1 ORDER BY line_number`, id)
	if err != nil {
		return Quotation{}, nil, err
	}
	defer rows.Close()
	lines, err := scanQuotationLines(rows)
	if err != nil {
		return Quotation{}, nil, err
	}
	return quotation, lines, nil
}

// ListClientQuotations returns a client's quotations, newest first.
func (r *Repository) ListClientQuotations(ctx context.Context, clientID int64) ([]Quotation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE client_id=$1 ORDER BY issue_date DESC, id DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	quotations := []Quotation{}
	for rows.Next() {
		quotation, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		quotations = append(quotations, quotation)
	}
	return quotations, rows.Err()
}

// ClientHasInitial reports whether a client already has an initial quotation.
func (r *Repository) ClientHasInitial(ctx context.Context, clientID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM quotations WHERE client_id=$1 AND is_initial)`, clientID).Scan(&exists)
	return exists, err
}

// QuotationRefExists reports whether a quotation reference is taken.
func (r *Repository) QuotationRefExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM quotations WHERE reference=$1)`, reference).Scan(&exists)
	return exists, err
}

// GetOrder fetches an order and its lines. The caller derives Status.
func (r *Repository) GetOrder(ctx context.Context, id int64) (ClientOrder, []OrderLine, error) {
	var order ClientOrder
	err := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM client_orders WHERE id=$1`, id).
		Scan(&order.ID, &order.Reference, &order.QuotationID, &order.ClientID, &order.OrderDate, &order.Currency, &order.Notes, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClientOrder{}, nil, fmt.Errorf("sales: client order %d: %w", id, shared.ErrNotFound)
		}
		return ClientOrder{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderLineColumns+` FROM client_order_lines WHERE client_order_id=$1 ORDER BY line_number`, id)
	if err != nil {
		return ClientOrder{}, nil, err
	}
	defer rows.Close()
	lines := []OrderLine{}
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.ClientOrderID, &line.LineNumber, &line.Description,
			&line.CaisseLengthMM, &line.CaisseWidthMM, &line.CaisseHeightMM, &line.CardboardType, &line.PrintColors,
			&line.Quantity, &line.NumericQuantity, &line.UnitPrice); err != nil {
			return ClientOrder{}, nil, err
		}
		lines = append(lines, line)
	}
	return order, lines, rows.Err()
}

// ListOrders returns all client orders, newest first.
func (r *Repository) ListOrders(ctx context.Context) ([]ClientOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM client_orders ORDER BY order_date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []ClientOrder{}
	for rows.Next() {
		var order ClientOrder
		if err := rows.Scan(&order.ID, &order.Reference, &order.QuotationID, &order.ClientID, &order.OrderDate, &order.Currency, &order.Notes, &order.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// OrderRefExists reports whether a client order reference is taken.
func (r *Repository) OrderRefExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM client_orders WHERE reference=$1)`, reference).Scan(&exists)
	return exists, err
}

// OrderExists reports whether a client order exists.
func (r *Repository) OrderExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM client_orders WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (t *txRepository) InsertQuotation(ctx context.Context, q Quotation) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO quotations (reference, client_id, status, is_initial, predecessor_id, issue_date, valid_until, currency, notes)
VALUES ($1,$2,$3,$4,NULLIF($5,0),$6,$7,$8,NULLIF($9,'')) RETURNING id`,
		q.Reference, q.ClientID, q.Status, q.IsInitial, q.PredecessorID, q.IssueDate, q.ValidUntil, q.Currency, q.Notes).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("sales: reference %s already used: %w", q.Reference, shared.ErrConflict)
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepository) InsertQuotationLine(ctx context.Context, line QuotationLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO quotation_lines
(quotation_id, line_number, description, caisse_length_mm, caisse_width_mm, caisse_height_mm, cardboard_type, print_colors, quantity, numeric_quantity, unit_price)
VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,NULLIF($7,''),$8,NULLIF($9,''),$10,$11) RETURNING id`,
		line.QuotationID, line.LineNumber, line.Description,
		line.CaisseLengthMM, line.CaisseWidthMM, line.CaisseHeightMM, line.CardboardType, line.PrintColors,
		line.Quantity, line.NumericQuantity, line.UnitPrice).Scan(&id)
	return id, err
}

func (t *txRepository) GetQuotationForUpdate(ctx context.Context, id int64) (Quotation, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id=$1 FOR UPDATE`, id)
	quotation, err := scanQuotation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quotation{}, fmt.Errorf("sales: quotation %d: %w", id, shared.ErrNotFound)
	}
	return quotation, err
}

func (t *txRepository) ListQuotationLines(ctx context.Context, quotationID int64) ([]QuotationLine, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+quotationLineColumns+` FROM quotation_lines WHERE quotation_id=$1 ORDER BY line_number`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQuotationLines(rows)
}

func (t *txRepository) ReplaceQuotationLines(ctx context.Context, quotationID int64, lines []QuotationLine) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM quotation_lines WHERE quotation_id=$1`, quotationID); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := t.InsertQuotationLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) UpdateQuotationHeader(ctx context.Context, q Quotation) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotations SET valid_until=$2, currency=$3, notes=NULLIF($4,'') WHERE id=$1`,
		q.ID, q.ValidUntil, q.Currency, q.Notes)
	return err
}

func (t *txRepository) MarkConverted(ctx context.Context, quotationID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotations SET status=$2 WHERE id=$1`, quotationID, QuotationConverted)
	return err
}

func (t *txRepository) InsertOrder(ctx context.Context, order ClientOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO client_orders (reference, quotation_id, client_id, order_date, currency, notes)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,'')) RETURNING id`,
		order.Reference, order.QuotationID, order.ClientID, order.OrderDate, order.Currency, order.Notes).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("sales: order reference %s already used: %w", order.Reference, shared.ErrConflict)
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepository) InsertOrderLine(ctx context.Context, line OrderLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO client_order_lines
(client_order_id, line_number, description, caisse_length_mm, caisse_width_mm, caisse_height_mm, cardboard_type, print_colors, quantity, numeric_quantity, unit_price)
VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,NULLIF($7,''),$8,NULLIF($9,''),$10,$11) RETURNING id`,
		line.ClientOrderID, line.LineNumber, line.Description,
		line.CaisseLengthMM, line.CaisseWidthMM, line.CaisseHeightMM, line.CardboardType, line.PrintColors,
		line.Quantity, line.NumericQuantity, line.UnitPrice).Scan(&id)
	return id, err
}

func scanQuotation(row pgx.Row) (Quotation, error) {
	var q Quotation
	err := row.Scan(&q.ID, &q.Reference, &q.ClientID, &q.Status, &q.IsInitial, &q.PredecessorID, &q.IssueDate, &q.ValidUntil, &q.Currency, &q.Notes, &q.CreatedAt)
	return q, err
}

func scanQuotationLines(rows pgx.Rows) ([]QuotationLine, error) {
	lines := []QuotationLine{}
	for rows.Next() {
		var line QuotationLine
		if err := rows.Scan(&line.ID, &line.QuotationID, &line.LineNumber, &line.Description,
			&line.CaisseLengthMM, &line.CaisseWidthMM, &line.CaisseHeightMM, &line.CardboardType, &line.PrintColors,
			&line.Quantity, &line.NumericQuantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
