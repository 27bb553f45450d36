// Package refs produces document references: random short references for
// most document types and year-scoped sequential numbers for supplier
// purchase orders.
package refs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/embalage-erp/embalage-erp/internal/shared"
)

// Document prefixes. Two letters per document type, same register as the
// paper documents they identify.
const (
	PrefixQuotation   = "DV" // devis
	PrefixClientOrder = "CM" // commande client
	PrefixDelivery    = "LV" // livraison
	PrefixInvoice     = "FC" // facture
	PrefixBatch       = "PD" // production
)

const maxAttempts = 5

// ExistsFunc reports whether a candidate reference is already taken.
type ExistsFunc func(ctx context.Context, reference string) (bool, error)

// SequenceStore allocates per-year purchase order sequence numbers. The
// allocation must be serialized per year; the Postgres implementation relies
// on the row lock taken by the upsert.
type SequenceStore interface {
	NextPurchaseOrderSeq(ctx context.Context, year int) (int, error)
}

// Generator builds references for all document types.
type Generator struct {
	seq SequenceStore
	now func() time.Time
}

// NewGenerator constructs a Generator. seq may be nil when purchase order
// numbering is not needed (tests, offline tooling).
func NewGenerator(seq SequenceStore) *Generator {
	return &Generator{seq: seq, now: time.Now}
}

// Random returns "{PREFIX}-{6 uppercase hex}". 48 bits of entropy: collisions
// are improbable but possible, so callers needing hard uniqueness go through
// Unique.
func Random(prefix string) string {
	var buf [3]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("refs: random source: %v", err))
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(hex.EncodeToString(buf[:])))
}

// Unique returns a random reference that exists does not know, regenerating
// on collision up to maxAttempts times.
func (g *Generator) Unique(ctx context.Context, prefix string, exists ExistsFunc) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("refs: empty prefix: %w", shared.ErrInvalidArgument)
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := Random(prefix)
		if exists == nil {
			return candidate, nil
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("refs: check %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("refs: %d attempts for prefix %s: %w", maxAttempts, prefix, shared.ErrReferenceExhausted)
}

// PurchaseOrderRef allocates the next "BC{NN}/{YYYY}" number for the current
// year. Concurrent callers are serialized by the sequence store, never by a
// read-max fallback.
func (g *Generator) PurchaseOrderRef(ctx context.Context) (string, error) {
	if g.seq == nil {
		return "", fmt.Errorf("refs: sequence store not configured")
	}
	year := g.now().Year()
	seq, err := g.seq.NextPurchaseOrderSeq(ctx, year)
	if err != nil {
		return "", fmt.Errorf("refs: purchase order seq for %d: %w", year, err)
	}
	return fmt.Sprintf("BC%02d/%d", seq, year), nil
}
