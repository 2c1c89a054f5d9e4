package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Protocol error codes. The JSON-RPC 2.0 range is shared with every other
// MCP v2 implementation; the -32003/-32004 codes are client-local and never
// appear on the wire.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeContextInvalid      = -32100
	CodeContextExpired      = -32101
	CodeTransportError      = -32200
	CodeAuthenticationError = -32300
	CodeAuthorizationError  = -32301
	CodeRateLimitError      = -32400
	CodeResourceNotFound    = -32404
	CodeResourceConflict    = -32409
	CodeValidationError     = -32422

	CodeConnectionError = -32003
	CodeTimeoutError    = -32004
)

// Error type names for the client-local error taxonomy.
const (
	TypeConnectionError = "ConnectionError"
	TypeTimeoutError    = "TimeoutError"
	TypeValidationError = "ValidationError"
	TypeServerError     = "ServerError"
)

// Error is the error structure carried by responses and surfaced to
// callers. Server-produced errors keep the code/type/data the server sent;
// client-local errors use the constructors below.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Type    string          `json:"type,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("[%s %d] %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// NewConnectionError creates a client-local connection error.
func NewConnectionError(message string) *Error {
	return &Error{Code: CodeConnectionError, Type: TypeConnectionError, Message: message}
}

// NewTimeoutError creates a client-local timeout error.
func NewTimeoutError(message string) *Error {
	return &Error{Code: CodeTimeoutError, Type: TypeTimeoutError, Message: message}
}

// NewValidationError creates a client-local validation error for requests
// rejected before they reach the transport.
func NewValidationError(message string) *Error {
	return &Error{Code: CodeInvalidRequest, Type: TypeValidationError, Message: message}
}

// IsConnectionError reports whether err is (or wraps) a client-local
// connection error.
func IsConnectionError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == CodeConnectionError
}

// IsTimeoutError reports whether err is (or wraps) a client-local timeout
// error.
func IsTimeoutError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == CodeTimeoutError
}

// IsValidationError reports whether err is a request rejected before send.
func IsValidationError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Type == TypeValidationError
}

// IsServerError reports whether err carries an authoritative protocol error
// produced by the server rather than by the client.
func IsServerError(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case CodeConnectionError, CodeTimeoutError:
		return false
	}
	return pe.Type != TypeValidationError
}

// Retryable reports whether the error is one a per-call retry policy may
// act on. Server errors are authoritative and validation errors are
// deterministic, so neither is ever retried.
func Retryable(err error) bool {
	return IsConnectionError(err) || IsTimeoutError(err)
}
