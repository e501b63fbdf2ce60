// Package errors provides the error taxonomy shared by the documind client.
//
// Sentinel errors describe the broad failure categories of remote capabilities
// and local state machines. Capability failures are wrapped in *CapabilityError,
// which matches the sentinel of its code under errors.Is.
//
// Usage:
//
//	import dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
//
//	if dmerrors.IsBusy(err) {
//	    // tell the user to wait for the running operation
//	}
package errors

import "errors"

var (
	// ErrTransport indicates the remote service could not be reached or
	// answered with a non-success status.
	ErrTransport = errors.New("transport failure")

	// ErrAuth indicates the bearer credential was rejected.
	ErrAuth = errors.New("authentication rejected")

	// ErrMalformedResponse indicates the response could not be decoded or
	// lacked a required field.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrRateLimited indicates the service asked the client to slow down.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates the operation cannot run, usually because no
	// credential is present.
	ErrUnavailable = errors.New("operation unavailable")

	// ErrUnsupported indicates the selected provider cannot handle the input.
	ErrUnsupported = errors.New("unsupported")

	// ErrBusy indicates an operation of the same kind is already in flight.
	ErrBusy = errors.New("operation already in progress")

	// ErrInvalidState indicates the operation is not valid for the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrStale indicates a result arrived after the state it belonged to was replaced.
	ErrStale = errors.New("stale result")

	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation error")
)

// IsBusy reports whether any error in err's chain is ErrBusy.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsStale reports whether any error in err's chain is ErrStale.
func IsStale(err error) bool {
	return errors.Is(err, ErrStale)
}

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
