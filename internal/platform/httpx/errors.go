// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/electcore/electcore/internal/shared"
)

// ErrUnauthorized is returned when no principal could be authenticated.
var ErrUnauthorized = errors.New("unauthorized")

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, title, detail)
}

// StatusFor returns the HTTP status and problem title for err.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, shared.ErrAlreadyVoted):
		return http.StatusConflict, "Already Voted"
	case errors.Is(err, shared.ErrNotActive):
		return http.StatusUnprocessableEntity, "Election Not Active"
	case errors.Is(err, shared.ErrInvalidCandidate):
		return http.StatusUnprocessableEntity, "Invalid Candidate"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, shared.ErrStoreFailure):
		return http.StatusServiceUnavailable, "Store Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
