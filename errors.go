package pgkit

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors for lock and query operations.
var (
	// ErrLockUnavailable is returned when a NOWAIT acquisition could not
	// be granted immediately.
	ErrLockUnavailable = errors.New("pgkit: lock unavailable")

	// ErrLockTimeout is returned when the lock timeout elapsed while waiting.
	ErrLockTimeout = errors.New("pgkit: lock timeout")

	// ErrLockKeyOverflow is returned when a raw advisory key does not fit
	// the PostgreSQL key space.
	ErrLockKeyOverflow = errors.New("pgkit: lock key overflow")

	// ErrMaterialization is returned when a row cannot be converted to the
	// requested result shape.
	ErrMaterialization = errors.New("pgkit: materialization failed")

	// ErrInvalidOptions is returned for contradicting or out of range options,
	// e.g. NOWAIT together with a timeout.
	ErrInvalidOptions = errors.New("pgkit: invalid options")

	// ErrTxRequired is returned when an operation needs an active transaction.
	ErrTxRequired = errors.New("pgkit: transaction required")

	// ErrTimeoutRequiresTx is returned when a lock timeout is requested outside
	// a transaction without opting in to session level timeouts.
	ErrTimeoutRequiresTx = errors.New("pgkit: lock timeout can only be used in a transaction block")

	// ErrClosed is returned when a closed query context is used.
	ErrClosed = errors.New("pgkit: use of closed query context")

	// ErrSealed is returned when a query bound to a materializer that already
	// builds a caller type is converted to another type.
	ErrSealed = errors.New("pgkit: sealed materializer can't be transformed")
)

// LockUnavailableError represents a NOWAIT lock request that was refused.
type LockUnavailableError struct {
	Target string // Locked tables or advisory key
	Err    error  // Underlying driver error, nil for pg_try_advisory_lock
}

// Error returns the error string.
func (e *LockUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pgkit: lock on %s unavailable: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("pgkit: lock on %s unavailable", e.Target)
}

// Is reports whether the target error matches LockUnavailableError.
// This allows errors.Is(err, ErrLockUnavailable) to return true.
func (e *LockUnavailableError) Is(err error) bool {
	return err == ErrLockUnavailable
}

// Unwrap returns the underlying error.
func (e *LockUnavailableError) Unwrap() error {
	return e.Err
}

// NewLockUnavailableError returns a new LockUnavailableError.
func NewLockUnavailableError(target string, err error) *LockUnavailableError {
	return &LockUnavailableError{Target: target, Err: err}
}

// IsLockUnavailable returns true if the error is a LockUnavailableError.
func IsLockUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var e *LockUnavailableError
	return errors.As(err, &e) || errors.Is(err, ErrLockUnavailable)
}

// LockTimeoutError represents a lock request that timed out.
type LockTimeoutError struct {
	Target  string        // Locked tables or advisory key
	Timeout time.Duration // Timeout in effect
	Err     error         // Underlying driver error
}

// Error returns the error string.
func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("pgkit: lock on %s not acquired within %s: %v", e.Target, e.Timeout, e.Err)
}

// Is reports whether the target error matches LockTimeoutError.
func (e *LockTimeoutError) Is(err error) bool {
	return err == ErrLockTimeout
}

// Unwrap returns the underlying error.
func (e *LockTimeoutError) Unwrap() error {
	return e.Err
}

// NewLockTimeoutError returns a new LockTimeoutError.
func NewLockTimeoutError(target string, timeout time.Duration, err error) *LockTimeoutError {
	return &LockTimeoutError{Target: target, Timeout: timeout, Err: err}
}

// IsLockTimeout returns true if the error is a LockTimeoutError.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	var e *LockTimeoutError
	return errors.As(err, &e) || errors.Is(err, ErrLockTimeout)
}

// LockKeyOverflowError represents a raw advisory key value out of range.
type LockKeyOverflowError struct {
	Value any // Offending key part
	Bits  int // Width of the expected signed integer, 32 or 64
}

// Error returns the error string.
func (e *LockKeyOverflowError) Error() string {
	return fmt.Sprintf("pgkit: lock key %v does not fit in a signed %d-bit integer", e.Value, e.Bits)
}

// Is reports whether the target error matches LockKeyOverflowError.
func (e *LockKeyOverflowError) Is(err error) bool {
	return err == ErrLockKeyOverflow
}

// NewLockKeyOverflowError returns a new LockKeyOverflowError.
func NewLockKeyOverflowError(value any, bits int) *LockKeyOverflowError {
	return &LockKeyOverflowError{Value: value, Bits: bits}
}

// IsLockKeyOverflow returns true if the error is a LockKeyOverflowError.
func IsLockKeyOverflow(err error) bool {
	if err == nil {
		return false
	}
	var e *LockKeyOverflowError
	return errors.As(err, &e)
}

// MaterializationError represents a row that could not be converted into
// the result type.
type MaterializationError struct {
	Type   string // Result type name
	Column string // Column or field involved, if any
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MaterializationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("pgkit: materialize %s (column %q): %v", e.Type, e.Column, e.Err)
	}
	return fmt.Sprintf("pgkit: materialize %s: %v", e.Type, e.Err)
}

// Is reports whether the target error matches MaterializationError.
func (e *MaterializationError) Is(err error) bool {
	return err == ErrMaterialization
}

// Unwrap returns the underlying error.
func (e *MaterializationError) Unwrap() error {
	return e.Err
}

// NewMaterializationError returns a new MaterializationError.
func NewMaterializationError(typ, column string, err error) *MaterializationError {
	return &MaterializationError{Type: typ, Column: column, Err: err}
}

// IsMaterializationError returns true if the error is a MaterializationError.
func IsMaterializationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MaterializationError
	return errors.As(err, &e)
}

// ReleaseError wraps an error that occurred while releasing a scoped resource.
type ReleaseError struct {
	Target string // Released lock or resource
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *ReleaseError) Error() string {
	return fmt.Sprintf("pgkit: release %s: %v", e.Target, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReleaseError) Unwrap() error {
	return e.Err
}

// IsReleaseError returns true if the error is a ReleaseError.
func IsReleaseError(err error) bool {
	if err == nil {
		return false
	}
	var e *ReleaseError
	return errors.As(err, &e)
}
