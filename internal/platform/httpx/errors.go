// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/colegio-portal/colegio-portal/internal/authz"
	"github.com/colegio-portal/colegio-portal/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Reference-data problems (unknown role/service) read as server-side
// configuration faults; caller-input problems read as bad requests.
func RespondError(w http.ResponseWriter, err error) {
	var partial *authz.PartialWriteError
	switch {
	case errors.Is(err, authz.ErrMissingReason), errors.Is(err, authz.ErrInvalidLimit):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, authz.ErrUnknownRole), errors.Is(err, authz.ErrUnknownService):
		Problem(w, http.StatusInternalServerError, "Configuration Error", "contact administrator")
	case errors.As(err, &partial):
		Problem(w, http.StatusInternalServerError, "Partial Write", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrCSRFTokenMissing), errors.Is(err, shared.ErrCSRFTokenMismatch):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
