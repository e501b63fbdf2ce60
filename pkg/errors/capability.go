package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a classified capability error.
type ErrorCode string

const (
	CodeTransport   ErrorCode = "transport"
	CodeAuth        ErrorCode = "auth"
	CodeMalformed   ErrorCode = "malformed_response"
	CodeRateLimit   ErrorCode = "rate_limit"
	CodeUnavailable ErrorCode = "unavailable"
	CodeUnsupported ErrorCode = "unsupported"
	CodeTimeout     ErrorCode = "timeout"
	CodeCancelled   ErrorCode = "cancelled"
	CodeUnknown     ErrorCode = "unknown"
)

var codeSentinels = map[ErrorCode]error{
	CodeTransport:   ErrTransport,
	CodeAuth:        ErrAuth,
	CodeMalformed:   ErrMalformedResponse,
	CodeRateLimit:   ErrRateLimited,
	CodeUnavailable: ErrUnavailable,
	CodeUnsupported: ErrUnsupported,
	// A timed out call never reached a usable answer; callers treat it as transport.
	CodeTimeout: ErrTransport,
}

// CapabilityError is a structured error for a failed remote capability call.
type CapabilityError struct {
	Code      ErrorCode
	Operation string
	Status    int
	Message   string
	Cause     error
}

// NewCapabilityError builds a CapabilityError.
func NewCapabilityError(code ErrorCode, operation, message string, cause error) *CapabilityError {
	return &CapabilityError{Code: code, Operation: operation, Message: message, Cause: cause}
}

// WithStatus records the remote status code and returns e.
func (e *CapabilityError) WithStatus(status int) *CapabilityError {
	e.Status = status
	return e
}

func (e *CapabilityError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Operation != "" {
		b.WriteString(": ")
		b.WriteString(e.Operation)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *CapabilityError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel that corresponds to the error code.
func (e *CapabilityError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

// ClassifyError inspects an error and returns a *CapabilityError with the
// appropriate code. Errors that already are capability errors are returned as is.
func ClassifyError(err error, operation string) *CapabilityError {
	if err == nil {
		return nil
	}

	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce
	}

	ce = &CapabilityError{Operation: operation, Cause: err}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ce.Code = CodeTimeout
		ce.Message = "operation timed out"
		return ce
	case errors.Is(err, context.Canceled):
		ce.Code = CodeCancelled
		ce.Message = "operation cancelled"
		return ce
	}

	for code, sentinel := range codeSentinels {
		if code != CodeTimeout && errors.Is(err, sentinel) {
			ce.Code = code
			return ce
		}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	ce.Message = msg

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid token"):
		ce.Code = CodeAuth
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		ce.Code = CodeRateLimit
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset") || strings.Contains(lower, "unavailable"):
		ce.Code = CodeTransport
	default:
		ce.Code = CodeUnknown
	}
	return ce
}

// IsErrorRetryable returns true if the error is likely transient and worth retrying
// by the user.
func IsErrorRetryable(err error) bool {
	ce := ClassifyError(err, "")
	if ce == nil {
		return false
	}
	return IsRetryable(ce.Code)
}

// UserMessage returns the non-technical message shown to the user for err.
func UserMessage(err error) string {
	ce := ClassifyError(err, "")
	if ce == nil {
		return ""
	}
	return GetUserMessage(ce.Code)
}

// SuggestedAction returns the next step to offer the user for err. It is empty
// for errors about local input or state, whose message already says what to
// do, and for errors that cannot be classified.
func SuggestedAction(err error) string {
	if err == nil || IsValidation(err) || IsNotFound(err) || IsBusy(err) || IsStale(err) || IsInvalidState(err) {
		return ""
	}
	ce := ClassifyError(err, "")
	switch ce.Code {
	case CodeUnknown, CodeCancelled:
		return ""
	}
	return GetSuggestedAction(ce.Code)
}
