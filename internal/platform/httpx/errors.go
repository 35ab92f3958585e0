package httpx

import (
	"errors"
	"net/http"

	"github.com/bookstore-admin/console/internal/gateway"
)

// StatusFor maps gateway errors to the status the console answers with.
func StatusFor(err error) int {
	var apiErr *gateway.APIError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, gateway.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &apiErr):
		if apiErr.Status >= http.StatusInternalServerError {
			return http.StatusBadGateway
		}
		return apiErr.Status
	case errors.Is(err, gateway.ErrTransport), errors.Is(err, gateway.ErrMalformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns text safe to show an administrator for err.
func UserMessage(err error, fallback string) string {
	var apiErr *gateway.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, gateway.ErrTransport):
		return "The bookstore API is unreachable. Please try again."
	default:
		return fallback
	}
}

// RespondError maps errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	Problem(w, status, http.StatusText(status), UserMessage(err, ""))
}
