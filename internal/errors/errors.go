// Package errors defines the error taxonomy of the table gateway and the
// mapping of those errors onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of a table operation.
type Kind string

const (
	KindNotFound             Kind = "NOT_FOUND"
	KindRemoteRejected       Kind = "REMOTE_REJECTED"
	KindRemoteUnavailable    Kind = "REMOTE_UNAVAILABLE"
	KindMalformedResponse    Kind = "MALFORMED_RESPONSE"
	KindConfigurationMissing Kind = "CONFIGURATION_MISSING"
	KindInvalidRequest       Kind = "INVALID_REQUEST"
)

// Sentinel errors, one per Kind. A *TableError matches the sentinel of its
// kind through errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrRemoteRejected       = errors.New("remote rejected request")
	ErrRemoteUnavailable    = errors.New("remote unavailable")
	ErrMalformedResponse    = errors.New("malformed remote response")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrInvalidRequest       = errors.New("invalid request")
)

var sentinels = map[Kind]error{
	KindNotFound:             ErrNotFound,
	KindRemoteRejected:       ErrRemoteRejected,
	KindRemoteUnavailable:    ErrRemoteUnavailable,
	KindMalformedResponse:    ErrMalformedResponse,
	KindConfigurationMissing: ErrConfigurationMissing,
	KindInvalidRequest:       ErrInvalidRequest,
}

// TableError is a structured error carrying the failing operation and, for
// remote failures, the status code and error type reported by the remote API.
type TableError struct {
	Kind       Kind
	Op         string
	StatusCode int
	RemoteType string
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *TableError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = sentinels[e.Kind].Error()
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d", msg, e.StatusCode)
		if e.RemoteType != "" {
			msg += ", type " + e.RemoteType
		}
		msg += ")"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TableError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel error of this error's kind.
func (e *TableError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the Kind of err, or "" when err is not a *TableError.
func KindOf(err error) Kind {
	var te *TableError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// NotFound creates a not-found error for op.
func NotFound(op, message string, statusCode int, remoteType string) *TableError {
	return &TableError{Kind: KindNotFound, Op: op, Message: message, StatusCode: statusCode, RemoteType: remoteType}
}

// RemoteRejected creates an error for a non-2xx remote status.
func RemoteRejected(op, message string, statusCode int, remoteType string) *TableError {
	return &TableError{Kind: KindRemoteRejected, Op: op, Message: message, StatusCode: statusCode, RemoteType: remoteType}
}

// RemoteUnavailable wraps a transport-level failure.
func RemoteUnavailable(op string, cause error) *TableError {
	return &TableError{Kind: KindRemoteUnavailable, Op: op, Cause: cause}
}

// MalformedResponse wraps a failure to decode a remote response body.
func MalformedResponse(op string, cause error) *TableError {
	return &TableError{Kind: KindMalformedResponse, Op: op, Cause: cause}
}

// ConfigurationMissing reports an absent configuration value, named by setting.
func ConfigurationMissing(op, setting string) *TableError {
	return &TableError{Kind: KindConfigurationMissing, Op: op, Message: setting + " is not configured"}
}

// InvalidRequest reports a request that failed validation.
func InvalidRequest(op, message string) *TableError {
	return &TableError{Kind: KindInvalidRequest, Op: op, Message: message}
}
