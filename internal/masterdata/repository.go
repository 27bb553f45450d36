package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/embalage-erp/embalage-erp/internal/shared"
)

// Repository provides PostgreSQL backed lookups for clients and suppliers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetClient fetches a client by id.
func (r *Repository) GetClient(ctx context.Context, id int64) (Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(contact,''), COALESCE(phone,''), COALESCE(address,''), active, created_at FROM clients WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Contact, &c.Phone, &c.Address, &c.Active, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, fmt.Errorf("masterdata: client %d: %w", id, shared.ErrNotFound)
		}
		return Client{}, err
	}
	return c, nil
}

// GetSupplier fetches a supplier by id.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(contact,''), COALESCE(phone,''), COALESCE(address,''), active, created_at FROM suppliers WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.Contact, &s.Phone, &s.Address, &s.Active, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, fmt.Errorf("masterdata: supplier %d: %w", id, shared.ErrNotFound)
		}
		return Supplier{}, err
	}
	return s, nil
}

// ListClients returns active clients ordered by name.
func (r *Repository) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(contact,''), COALESCE(phone,''), COALESCE(address,''), active, created_at FROM clients WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var clients []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Contact, &c.Phone, &c.Address, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// ListSuppliers returns active suppliers ordered by name.
func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(contact,''), COALESCE(phone,''), COALESCE(address,''), active, created_at FROM suppliers WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Contact, &s.Phone, &s.Address, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}
