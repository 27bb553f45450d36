package shared

import "errors"

// Workflow error taxonomy. Every business-rule failure maps onto one of
// these sentinels; infrastructure failures (connectivity, serialization)
// propagate as plain wrapped errors and stay distinct at the HTTP boundary.
var (
	// ErrNotFound indicates a referenced entity id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates rejected input: non-positive quantity,
	// empty required string, malformed id.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict indicates a duplicate unique key or an identifier
	// collision during restore.
	ErrConflict = errors.New("conflict")
	// ErrReferenceExhausted indicates the reference generator ran out of
	// retry budget without finding a free reference.
	ErrReferenceExhausted = errors.New("reference space exhausted")
)
