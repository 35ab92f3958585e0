package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized indicates the bearer token was rejected by the backend.
	ErrUnauthorized = errors.New("gateway: unauthorized")
	// ErrValidation indicates the backend rejected the payload with field errors.
	ErrValidation = errors.New("gateway: validation failed")
	// ErrTransport indicates the request never produced an HTTP response.
	ErrTransport = errors.New("gateway: transport failure")
	// ErrMalformed indicates the response body could not be decoded.
	ErrMalformed = errors.New("gateway: malformed response")
)

// GeneralField is the error map key used for messages not tied to a field.
const GeneralField = "general"

// APIError describes a non-2xx response from the bookstore API.
type APIError struct {
	Status  int
	Message string
	// Fields holds the first message reported for each rejected field.
	Fields map[string]string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway: api status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gateway: api status %d", e.Status)
}

// Unwrap exposes the sentinel matching the status class.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusUnprocessableEntity:
		return ErrValidation
	default:
		return nil
	}
}

type errorBody struct {
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(parsed.Message)
	if status == http.StatusUnprocessableEntity {
		apiErr.Fields = parseFieldErrors(parsed.Errors, apiErr.Message)
	}
	return apiErr
}

// parseFieldErrors normalises the `errors` member of a 422 payload. An object
// keyed by field keeps the first message per field, a bare list is joined into
// the general entry.
func parseFieldErrors(raw json.RawMessage, message string) map[string]string {
	fields := make(map[string]string)

	var byField map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byField); err == nil && len(byField) > 0 {
		for key, value := range byField {
			if msg := firstMessage(value); msg != "" {
				fields[key] = msg
			}
		}
		if len(fields) > 0 {
			return fields
		}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		fields[GeneralField] = strings.Join(list, " ")
		return fields
	}

	if message != "" {
		fields[GeneralField] = message
	} else {
		fields[GeneralField] = "Validation failed"
	}
	return fields
}

func firstMessage(raw json.RawMessage) string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, msg := range list {
			if msg = strings.TrimSpace(msg); msg != "" {
				return msg
			}
		}
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	return ""
}

// FieldErrors returns the field errors carried by err, if it is a validation
// rejection from the backend.
func FieldErrors(err error) (map[string]string, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity {
		return nil, false
	}
	out := make(map[string]string, len(apiErr.Fields))
	for k, v := range apiErr.Fields {
		out[k] = v
	}
	return out, true
}
