// Package errs provides the unified error type used across the gateway.
//
// Every subsystem (gateway, cache, synth, ratelimit, …) wraps its native
// errors into *errs.Error before returning them to callers. Callers use the
// Is* predicates to handle errors without importing driver-specific packages.
//
// Usage:
//
//	// In an adapter — wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	// In a handler — check error kind:
//	if errs.IsRateLimited(err) {
//	    http.Error(w, "too many requests", http.StatusTooManyRequests)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All engine adapters map their native errors to one of these kinds, giving
// callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown           ErrKind = iota
	ErrKindNotFound                  // no rows, no cached entry, no snapshot
	ErrKindConnectionFailed          // cannot reach or authenticate to the tenant database
	ErrKindTimeout                   // context deadline / cancellation
	ErrKindQueryFailed               // query execution error on the tenant database
	ErrKindInvalidInput              // bad arguments from the caller
	ErrKindUnsupportedEngine         // descriptor matches no known engine family
	ErrKindUnsafeQuery               // generated text is not a pure read statement
	ErrKindGenerationFailed          // draft + repair + fallback all exhausted
	ErrKindNoActiveDatabase          // tenant has no registered database
	ErrKindRateLimited               // tenant exceeded its plan allowance
	ErrKindCacheCorrupt              // cached payload failed to deserialize
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindUnsupportedEngine:
		return "unsupported_engine"
	case ErrKindUnsafeQuery:
		return "unsafe_query"
	case ErrKindGenerationFailed:
		return "generation_failed"
	case ErrKindNoActiveDatabase:
		return "no_active_database"
	case ErrKindRateLimited:
		return "rate_limited"
	case ErrKindCacheCorrupt:
		return "cache_corrupt"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all gateway subsystems.
// Adapters produce it; callers inspect it via the Is* predicates below.
//
// Message is safe to show to the tenant. Cause carries the original
// driver/provider error for logging and is never part of the user-facing
// message for UnsafeQuery or RateLimited kinds.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Fixed user-facing messages. The underlying detail stays in Cause so it can
// be logged without ever leaking into a tenant response.

// UnsafeQuery returns the non-leaky error for a rejected statement.
func UnsafeQuery(cause error) *Error {
	return &Error{Kind: ErrKindUnsafeQuery, Message: "generated query was rejected: only read statements are allowed", Cause: cause}
}

// RateLimited returns the non-leaky error for an exhausted allowance.
func RateLimited() *Error {
	return &Error{Kind: ErrKindRateLimited, Message: "request limit reached for the current plan"}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a query execution failure.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsUnsupportedEngine reports whether err means no engine family matched.
func IsUnsupportedEngine(err error) bool {
	return kindOf(err) == ErrKindUnsupportedEngine
}

// IsUnsafeQuery reports whether err means a non-read statement was detected.
func IsUnsafeQuery(err error) bool {
	return kindOf(err) == ErrKindUnsafeQuery
}

// IsGenerationFailed reports whether err means all synthesis retries were exhausted.
func IsGenerationFailed(err error) bool {
	return kindOf(err) == ErrKindGenerationFailed
}

// IsNoActiveDatabase reports whether err means the tenant has no registered database.
func IsNoActiveDatabase(err error) bool {
	return kindOf(err) == ErrKindNoActiveDatabase
}

// IsRateLimited reports whether err means the tenant exceeded its allowance.
func IsRateLimited(err error) bool {
	return kindOf(err) == ErrKindRateLimited
}

// IsCacheCorrupt reports whether err means a cached payload failed to decode.
func IsCacheCorrupt(err error) bool {
	return kindOf(err) == ErrKindCacheCorrupt
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
