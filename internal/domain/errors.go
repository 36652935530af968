package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is against any *Error.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrTransport     = errors.New("transport error")
	ErrAuth          = errors.New("authentication error")
	ErrRateLimit     = errors.New("rate limited")
	ErrNotFound      = errors.New("not found")
	ErrBackend       = errors.New("backend error")
	ErrEmptyResult   = errors.New("empty result")
	ErrExhausted     = errors.New("attempt budget exhausted")
)

// User-facing messages shared by the initiator, the transport and the poller.
const (
	RateLimitMessage        = "Oops, too many incoming access right now, please try again later!"
	MissingContextMessage   = "Application context is missing required information (GCS URI or User ID)."
	InitiateAuthMessage     = "Unable to authenticate your account to access video generation."
	InitiateShapeMessage    = "Video initiation failed: Unknown error structure in response data."
	InitiateFailureMessage  = "An unexpected error occurred while initiating video generation."
	PollAuthMessage         = "Unable to authenticate for polling status."
	PollFailureMessage      = "An error occurred while polling the video generation status."
	InvalidHandleMessage    = "Invalid operation name format."
	BackendFailureMessage   = "Video generation failed."
	EmptyResultMessage      = "Operation finished, but the response was not in the expected format."
	resourceExhaustedNeedle = "{ code: 8, message: 'Resource exhausted.' }"
)

// resourceExhaustedCode is the google.rpc.Code for RESOURCE_EXHAUSTED.
const resourceExhaustedCode = 8

// Error is the value every initiation or polling failure is converted to.
// Message is safe to show to a user; Err keeps the underlying cause for logs.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// NewError builds an *Error of the given kind.
func NewError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// NotFoundError reports an unknown or expired operation handle.
func NotFoundError(handle OperationHandle, cause error) *Error {
	return NewError(ErrNotFound, fmt.Sprintf("Operation %s not found. It might have expired or never existed.", handle), cause)
}

// ExhaustedError reports that the poller gave up after attempts status queries.
func ExhaustedError(handle OperationHandle, attempts int) *Error {
	return NewError(ErrExhausted, fmt.Sprintf("Video generation for operation %s timed out after %d polling attempts.", handle, attempts), nil)
}

// UserMessage returns the user-facing message carried by err, or fallback.
func UserMessage(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return fallback
}

// IsResourceExhausted recognizes the backend's quota signal in an operation
// error.
func IsResourceExhausted(code int, message string) bool {
	if code == resourceExhaustedCode && strings.Contains(strings.ToLower(message), "resource exhausted") {
		return true
	}
	return strings.Contains(message, resourceExhaustedNeedle)
}

// ClassifyOperationError maps the error block of a finished operation to a
// RateLimit or Backend error.
func ClassifyOperationError(opErr OperationError) *Error {
	cause := fmt.Errorf("operation error code %d: %s", opErr.Code, opErr.Message)
	if IsResourceExhausted(opErr.Code, opErr.Message) {
		return NewError(ErrRateLimit, RateLimitMessage, cause)
	}
	message := strings.TrimSpace(opErr.Message)
	if message == "" {
		message = BackendFailureMessage
	}
	return NewError(ErrBackend, message, cause)
}
