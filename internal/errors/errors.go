// Package errors provides the coded error type shared by the aggregation engine and its HTTP surface.
package errors

// Import as perr.

import (
	stderrs "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies failures that cross package boundaries.
// Values are stable for wire compatibility.
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors.
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodeConfiguration is for missing or invalid credentials/settings detected before any network call.
	ErrorCodeConfiguration

	// ErrorCodeAuthentication is for provider rejections of the configured credential.
	ErrorCodeAuthentication

	// ErrorCodePermissionOrRateLimit is for forbidden responses and exhausted rate budgets.
	ErrorCodePermissionOrRateLimit

	// ErrorCodeNotFound is for missing organizations, users and repositories.
	ErrorCodeNotFound

	// ErrorCodeInvalidArgument is for bad caller input.
	ErrorCodeInvalidArgument

	// ErrorCodeDB is for persistence failures.
	ErrorCodeDB

	// ErrorCodeDuplicateKey is for unique constraint violations.
	ErrorCodeDuplicateKey
)

var codeNames = map[ErrorCode]string{
	ErrorCodeUnknown:               "unknown",
	ErrorCodeConfiguration:         "configuration",
	ErrorCodeAuthentication:        "authentication",
	ErrorCodePermissionOrRateLimit: "permission_or_rate_limit",
	ErrorCodeNotFound:              "not_found",
	ErrorCodeInvalidArgument:       "invalid_argument",
	ErrorCodeDB:                    "db",
	ErrorCodeDuplicateKey:          "duplicate_key",
}

// String returns the stable label for the code.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// HTTPStatusCode turns an ErrorCode into an http status code.
func HTTPStatusCode(c ErrorCode) int {
	switch c {
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrorCodeAuthentication:
		return http.StatusBadGateway
	case ErrorCodePermissionOrRateLimit:
		return http.StatusServiceUnavailable
	case ErrorCodeDuplicateKey:
		return http.StatusConflict
	case ErrorCodeConfiguration, ErrorCodeDB, ErrorCodeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error type.
// msg is developer facing; code is machine facing; op names the failing operation.
type Error struct {
	orig error
	msg  string
	code ErrorCode
	op   string
}

// Wire is the JSON form returned by the API.
type Wire struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Op      string `json:"op,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code.
func (e *Error) Code() ErrorCode { return e.code }

// Op returns the operation label, if set.
func (e *Error) Op() string { return e.op }

// ToWire converts an *Error to a Wire payload.
func (e *Error) ToWire() Wire { return Wire{Code: e.code.String(), Message: e.Error(), Op: e.op} }

// WireFrom converts any error into a Wire payload.
func WireFrom(err error) Wire {
	if err == nil {
		return Wire{}
	}
	if e, ok := As(err); ok {
		return e.ToWire()
	}
	return Wire{Code: ErrorCodeUnknown.String(), Message: err.Error()}
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown.
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code.
func IsCode(err error, code ErrorCode) bool { return err != nil && CodeOf(err) == code }

// HTTPStatus returns the mapped HTTP status for any error.
func HTTPStatus(err error) int { return HTTPStatusCode(CodeOf(err)) }

// As unwraps and returns (*Error, true) if err is one of ours.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// WithOp attaches an operation label (copy-on-write). Foreign errors are returned unchanged.
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// New returns a new *Error with the given code and message.
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message.
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message.
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message.
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// Configurationf returns a configuration error.
func Configurationf(format string, a ...any) error {
	return Newf(ErrorCodeConfiguration, format, a...)
}

// InvalidArgf returns an invalid argument error.
func InvalidArgf(format string, a ...any) error { return Newf(ErrorCodeInvalidArgument, format, a...) }

// NotFoundf returns a not found error.
func NotFoundf(format string, a ...any) error { return Newf(ErrorCodeNotFound, format, a...) }

// HTTP bundles status and wire payload for handlers.
func HTTP(err error) (int, Wire) {
	if err == nil {
		return http.StatusOK, Wire{}
	}
	return HTTPStatus(err), WireFrom(err)
}
