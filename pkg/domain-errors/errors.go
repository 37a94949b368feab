// Package errors defines the coded error type shared by every service layer.
//
// Services translate infrastructure facts (pkg/platform/sentinel) and
// validation failures into coded errors; transports translate codes into
// status lines. The code set mirrors the RPC status mapping the API contract
// prescribes, so a handler never needs to inspect anything but the code.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and retry semantics.
type Code string

const (
	// CodeInvalidArgument marks malformed or missing input. Never retried.
	CodeInvalidArgument Code = "invalid_argument"
	// CodeNotFound marks a match or search miss. Never retried.
	CodeNotFound Code = "not_found"
	// CodeConflict marks an ambiguous match (candidates across multiple
	// active organizations). Never retried.
	CodeConflict Code = "conflict"
	// CodeAlreadyExists marks a claim collision on an eligibility record.
	CodeAlreadyExists Code = "already_exists"
	// CodeUnimplemented marks missing required configuration, e.g. a
	// client-specific check against an organization with no implementation.
	CodeUnimplemented Code = "unimplemented"
	// CodeUnauthorized marks a missing or invalid credential on the request.
	CodeUnauthorized Code = "unauthorized"
	// CodeUnavailable marks an upstream failure that the client may retry.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks a persistence or logic failure on our side.
	CodeInternal Code = "internal"
	// CodeUnknown is the fallback for unclassified errors.
	CodeUnknown Code = "unknown"
)

// FieldViolation names one offending request field.
type FieldViolation struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Error is a coded error with an optional method tag and field violations.
// Method carries the verification method that produced the error so that
// callers can distinguish, say, a standard miss from an alternate miss
// without distinct types.
type Error struct {
	Code    Code
	Message string
	Method  string
	Fields  []FieldViolation
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Validation builds an invalid-argument error carrying field violations.
func Validation(message string, fields ...FieldViolation) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message, Fields: fields}
}

// WithMethod tags the error with the originating verification method.
func (e *Error) WithMethod(method string) *Error {
	e.Method = method
	return e
}

// CodeOf extracts the code from err, walking the wrap chain.
// Unclassified errors report CodeUnknown.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// MethodOf extracts the method tag, if any.
func MethodOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Method
	}
	return ""
}

// FieldsOf extracts the field violations, if any.
func FieldsOf(err error) []FieldViolation {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Fields
	}
	return nil
}
