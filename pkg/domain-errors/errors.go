// Package dErrors provides coded domain errors. Services translate store
// sentinels into these; the transport layer maps codes onto HTTP statuses.
//
// Only Unreachable and Unconfirmed are retryable by callers. Every other code
// is permanent for the given arguments and must not be retried unchanged.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for programmatic handling.
type Code string

const (
	// CodeInvalidArgument covers empty or zero-value input.
	CodeInvalidArgument Code = "invalid_argument"
	// CodeUnauthorized means the caller is not the designated writer,
	// administrator, or receiver for the operation.
	CodeUnauthorized Code = "unauthorized"
	// CodeAlreadyExists means a single-write-per-key invariant was violated.
	CodeAlreadyExists Code = "already_exists"
	// CodeNotFound means a read of an absent key.
	CodeNotFound Code = "not_found"
	// CodeAlreadyClaimed means the escrow rule reached its terminal claimed
	// state before this call.
	CodeAlreadyClaimed Code = "already_claimed"
	// CodeExpired means the escrow rule's expiry passed unclaimed.
	CodeExpired Code = "expired"
	// CodeInsufficientFunds means the sender's available balance does not
	// cover the escrow amount.
	CodeInsufficientFunds Code = "insufficient_funds"
	// CodeUnconfirmed means a submission timed out before the ledger
	// finalized it. The caller must re-check state before retrying.
	CodeUnconfirmed Code = "unconfirmed"
	// CodeUnreachable means the ledger or its endpoint cannot be contacted.
	CodeUnreachable Code = "unreachable"
	// CodeInternal wraps unexpected infrastructure failures. Details are
	// never exposed to callers.
	CodeInternal Code = "internal_error"
)

func (c Code) String() string { return string(c) }

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another coded error by code and message, so errors.Is works
// against a freshly constructed comparator.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Code == code {
			return true
		}
		err = e.cause
		e = nil
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability in tests.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code carried by err, or CodeInternal when err
// carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost message carried by err, or an empty string.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
