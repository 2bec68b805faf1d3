// Package errors provides error handling for GeoSift.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//   - Sentinel errors for the ingestion pipeline's failure taxonomy
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Add hints for users
//	return errors.WithHint(err, "configure the plugin before fetching")
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotConfigured) {
//	    // handle unconfigured plugin
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSafeDetails    = crdb.WithSafeDetails
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Advanced features
var (
	Handled            = crdb.Handled
	HandledWithMessage = crdb.HandledWithMessage
	WithDomain         = crdb.WithDomain
	GetDomain          = crdb.GetDomain
	WithContextTags    = crdb.WithContextTags
	EncodeError        = crdb.EncodeError
	DecodeError        = crdb.DecodeError
)

// Assertions and panics
var (
	AssertionFailedf                 = crdb.AssertionFailedf
	NewAssertionErrorWithWrappedErrf = crdb.NewAssertionErrorWithWrappedErrf
)

// Sentinel errors for the plugin execution and aggregation pipeline.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidInput indicates a malformed argument or record
	ErrInvalidInput = New("invalid input")

	// ErrNotConfigured indicates a plugin is missing required configuration.
	// Reported through IsConfigured; never fatal to the registry.
	ErrNotConfigured = New("plugin not configured")

	// ErrDiscovery indicates a single plugin failed to load during a scan.
	// Recorded and excluded; discovery of the remaining plugins continues.
	ErrDiscovery = New("plugin discovery failed")

	// ErrFetch indicates a paginated retrieval failed mid-loop.
	// Records accumulated before the failure are preserved and returned.
	ErrFetch = New("fetch failed")

	// ErrRunActive indicates a fetch run is already in flight for the
	// same (plugin, target) pair
	ErrRunActive = New("run already active")

	// ErrRateLimited indicates the caller declined to wait for a free
	// rate-limit slot
	ErrRateLimited = New("rate limit exceeded")

	// ErrPersistence indicates a project load/save failure. Always carries
	// the path and assumed format as detail.
	ErrPersistence = New("project persistence failed")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
// Also provides backward compatibility with string-based "not found" errors.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrNotFound) {
		return true
	}
	// Backward compatibility: check error message
	errMsg := err.Error()
	return len(errMsg) >= 9 && (errMsg == "not found" ||
		errMsg[len(errMsg)-9:] == "not found" ||
		len(errMsg) > 10 && errMsg[:10] == "not found:")
}

// IsNotConfigured checks if an error is or wraps ErrNotConfigured
func IsNotConfigured(err error) bool {
	return err != nil && Is(err, ErrNotConfigured)
}

// IsFetchError checks if an error is or wraps ErrFetch
func IsFetchError(err error) bool {
	return err != nil && Is(err, ErrFetch)
}

// IsRunActive checks if an error is or wraps ErrRunActive
func IsRunActive(err error) bool {
	return err != nil && Is(err, ErrRunActive)
}

// IsPersistenceError checks if an error is or wraps ErrPersistence
func IsPersistenceError(err error) bool {
	return err != nil && Is(err, ErrPersistence)
}

// WrapNotFound wraps an error as a not-found error with context
func WrapNotFound(err error, context string) error {
	return Wrap(Wrap(ErrNotFound, err.Error()), context)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewPersistenceError wraps a load/save failure with the path and format
// it was attempted against.
func NewPersistenceError(err error, path, format string) error {
	wrapped := Wrapf(Wrap(ErrPersistence, err.Error()), "project file %s", path)
	return WithDetailf(wrapped, "assumed format: %s", format)
}
