package httpx

import (
	"errors"
	"net/http"

	"github.com/embalage-erp/embalage-erp/internal/shared"
)

// RespondError maps workflow errors to HTTP responses using RFC7807.
// Business-rule failures carry their detail; anything outside the taxonomy
// is an infrastructure error and stays opaque to the client.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidArgument):
		Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrReferenceExhausted):
		Problem(w, http.StatusServiceUnavailable, "Reference Exhausted", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
