package httpx

import (
	"net/http"

	"github.com/sundayezeilo/digestlink/internal/errx"
)

// ErrorKindToStatus maps errx.Kind to HTTP status codes.
// Exhausted is a server-side failure: the caller cannot fix it by changing input.
func ErrorKindToStatus(kind errx.Kind) int {
	switch kind {
	case errx.NotFound:
		return http.StatusNotFound
	case errx.Conflict:
		return http.StatusConflict
	case errx.Invalid:
		return http.StatusBadRequest
	case errx.Unavailable, errx.Exhausted, errx.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKindToCode maps errx.Kind to error codes for JSON responses.
func ErrorKindToCode(kind errx.Kind) string {
	switch kind {
	case errx.NotFound:
		return "not_found"
	case errx.Conflict:
		return "conflict"
	case errx.Invalid:
		return "invalid_input"
	case errx.Exhausted:
		return "slug_space_exhausted"
	case errx.Unavailable:
		return "store_unavailable"
	default:
		return "internal_error"
	}
}
