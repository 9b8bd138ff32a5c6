// Package domain defines the core domain models for SockMesh.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form SM-<AREA>-<NNNN>; the last four digits start with the
// HTTP status family the error maps to.
type DomainError struct {
	Code    string // Error code (e.g., "SM-SESS-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrSessionNotFound indicates the requested session is not connected.
	ErrSessionNotFound = NewDomainError("SM-SESS-4040", "session not found")

	// ErrSessionConflict indicates the session ID is already registered.
	ErrSessionConflict = NewDomainError("SM-SESS-4090", "session id conflict")

	// ErrInvalidTransition indicates a lifecycle move that is not allowed.
	ErrInvalidTransition = NewDomainError("SM-SESS-4091", "invalid session state transition")

	// ErrSessionClosed indicates the session is disconnecting or gone.
	ErrSessionClosed = NewDomainError("SM-SESS-4100", "session closed")

	// ErrSessionLimit indicates the registry is at capacity.
	ErrSessionLimit = NewDomainError("SM-SESS-5030", "session limit reached")
)

// ============================================================================
// Event Errors (EVNT)
// ============================================================================

var (
	// ErrInvalidEventName indicates an empty event name.
	ErrInvalidEventName = NewDomainError("SM-EVNT-4000", "invalid event name")

	// ErrReservedEvent indicates an attempt to emit a reserved event name.
	ErrReservedEvent = NewDomainError("SM-EVNT-4001", "reserved event name")

	// ErrInvalidPayload indicates event arguments could not be encoded or decoded.
	ErrInvalidPayload = NewDomainError("SM-EVNT-4002", "invalid event payload")

	// ErrRateLimited indicates an inbound event exceeded the session rate limit.
	ErrRateLimited = NewDomainError("SM-EVNT-4290", "event rate limit exceeded")

	// ErrSendQueueFull indicates the outbound queue of the connection is full.
	ErrSendQueueFull = NewDomainError("SM-EVNT-5030", "send queue full")
)

// ============================================================================
// Acknowledgement Errors (ACK)
// ============================================================================

var (
	// ErrAckNotFound indicates an acknowledgement for an unknown id.
	ErrAckNotFound = NewDomainError("SM-ACK-4040", "acknowledgement id not pending")

	// ErrAckTimeout indicates no acknowledgement arrived in time.
	ErrAckTimeout = NewDomainError("SM-ACK-4080", "acknowledgement timeout")

	// ErrAckAlreadySent indicates a second reply to the same acknowledgement.
	ErrAckAlreadySent = NewDomainError("SM-ACK-4090", "acknowledgement already sent")
)

// ============================================================================
// Protocol Errors (PROT)
// ============================================================================

var (
	// ErrMalformedPacket indicates a packet that could not be decoded.
	ErrMalformedPacket = NewDomainError("SM-PROT-4000", "malformed packet")

	// ErrUnsupportedTransport indicates a transport other than websocket.
	ErrUnsupportedTransport = NewDomainError("SM-PROT-4001", "unsupported transport")

	// ErrInvalidNamespace indicates a namespace other than the default one.
	ErrInvalidNamespace = NewDomainError("SM-PROT-4002", "invalid namespace")

	// ErrUnexpectedPacket indicates a packet not valid in the current state.
	ErrUnexpectedPacket = NewDomainError("SM-PROT-4003", "unexpected packet")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("SM-SYS-5000", "internal server error")

	// ErrStorageError indicates a presence store error.
	ErrStorageError = NewDomainError("SM-SYS-5001", "storage error")

	// ErrServiceUnavailable indicates the service is shutting down.
	ErrServiceUnavailable = NewDomainError("SM-SYS-5030", "service unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("SM-SYS-4000", "bad request")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("SM-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("SM-ARG-1002", "missing required argument")
)
