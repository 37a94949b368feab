// Package httputil centralizes JSON response writing so handlers never build
// error bodies by hand.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "eligibility/pkg/domain-errors"
)

// errorBody is the wire shape for all error responses.
type errorBody struct {
	Error            string                   `json:"error"`
	ErrorDescription string                   `json:"error_description,omitempty"`
	Method           string                   `json:"method,omitempty"`
	ProvidedFields   []dErrors.FieldViolation `json:"providedFields,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps a coded error onto an HTTP status and JSON body.
// Internal errors omit the description so persistence details never leak.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{
		Error:          string(code),
		Method:         dErrors.MethodOf(err),
		ProvidedFields: dErrors.FieldsOf(err),
	}
	if code != dErrors.CodeInternal && code != dErrors.CodeUnknown {
		body.ErrorDescription = err.Error()
	}
	WriteJSON(w, StatusOf(code), body)
}

// StatusOf maps domain-error codes onto HTTP statuses. Ambiguity and claim
// collisions both map to 409 and are told apart by the code in the body.
func StatusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeAlreadyExists:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeUnimplemented:
		return http.StatusNotImplemented
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes a request body into dst, rejecting unknown payloads
// with a validation error the caller can surface directly.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidArgument, "malformed JSON request body")
	}
	return nil
}
