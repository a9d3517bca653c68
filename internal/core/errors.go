package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/lounge-server/internal/store"
)

// ErrorKind names a domain error on the wire.
type ErrorKind string

// Error kinds surfaced to clients.
const (
	KindAuthenticationRequired ErrorKind = "AuthenticationRequired"
	KindNotAuthorized          ErrorKind = "NotAuthorized"
	KindNotFound               ErrorKind = "NotFound"
	KindForbidden              ErrorKind = "Forbidden"
	KindBanned                 ErrorKind = "Banned"
	KindMuted                  ErrorKind = "Muted"
	KindValidation             ErrorKind = "ValidationError"
	KindConflict               ErrorKind = "Conflict"
	KindAlreadyBound           ErrorKind = "AlreadyBound"
	KindUnavailable            ErrorKind = "Unavailable"
	KindRateLimited            ErrorKind = "RateLimited"
)

// CoreError wraps a kind, a human-readable message and an optional cause.
// The cause is for server-side logging only.
type CoreError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Cause
}

func coreError(kind ErrorKind, msg string) *CoreError {
	return &CoreError{Kind: kind, Message: msg}
}

// NewError builds a CoreError for callers outside the package (transport, auth).
func NewError(kind ErrorKind, msg string) *CoreError {
	return coreError(kind, msg)
}

// AsCoreError extracts the CoreError from err's chain, or nil.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ce := AsCoreError(err)
	return ce != nil && ce.Kind == kind
}

// storeError maps an IdentityStore failure to a CoreError.
// notFound is the kind reported for store.ErrNotFound, which differs per operation.
func storeError(err error, notFound ErrorKind) *CoreError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &CoreError{Kind: notFound, Message: "identity not found", Cause: err}
	case errors.Is(err, store.ErrProtectedBadge):
		return &CoreError{Kind: KindForbidden, Message: "the owner badge cannot be changed", Cause: err}
	case errors.Is(err, store.ErrInvalidBadge):
		return &CoreError{Kind: KindValidation, Message: "invalid badge", Cause: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &CoreError{Kind: KindUnavailable, Message: "identity store timed out", Cause: err}
	default:
		return &CoreError{Kind: KindUnavailable, Message: "identity store unavailable", Cause: err}
	}
}
