package refs

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSequenceStore allocates purchase order numbers from document_sequences.
type PGSequenceStore struct {
	pool *pgxpool.Pool
}

// NewPGSequenceStore constructs the store.
func NewPGSequenceStore(pool *pgxpool.Pool) *PGSequenceStore {
	return &PGSequenceStore{pool: pool}
}

// NextPurchaseOrderSeq increments and returns the BC sequence for a year.
// The upsert locks the (doc_type, year) row, so two sessions creating
// supplier orders in the same year cannot observe the same value.
func (s *PGSequenceStore) NextPurchaseOrderSeq(ctx context.Context, year int) (int, error) {
	var seq int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, year, seq)
		VALUES ('BC', $1, 1)
		ON CONFLICT (doc_type, year)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, year).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}
