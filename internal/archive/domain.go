// Package archive moves finished workflow records out of the live tables into
// a dedicated archive, keeping a lossless JSONB snapshot so any archived
// record can be restored exactly as it was.
package archive

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which record type a snapshot holds. KindClientOrder is the
// aggregate kind: it covers the order together with its quotation, linked
// supplier orders and production batch. The other kinds archive records that
// never became part of a client order.
type Kind string

const (
	KindQuotation       Kind = "QUOTATION"
	KindClientOrder     Kind = "CLIENT_ORDER"
	KindSupplierOrder   Kind = "SUPPLIER_ORDER"
	KindProductionBatch Kind = "PRODUCTION_BATCH"
)

// Valid reports whether k is a known record kind.
func (k Kind) Valid() bool {
	switch k {
	case KindQuotation, KindClientOrder, KindSupplierOrder, KindProductionBatch:
		return true
	}
	return false
}

// ArchivedTransaction is one archived record. Snapshot holds the full row
// data of the record and its children; Reference and ClientID are denormalised
// for listing without unpacking the snapshot.
type ArchivedTransaction struct {
	ID         uuid.UUID
	Kind       Kind
	SourceID   int64
	Reference  string
	ClientID   int64
	Summary    string
	Snapshot   json.RawMessage
	ArchivedAt time.Time
	RestoredAt *time.Time
}

// Restored reports whether the record went back to the live tables.
func (a ArchivedTransaction) Restored() bool {
	return a.RestoredAt != nil
}
