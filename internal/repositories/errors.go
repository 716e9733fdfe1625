package repositories

import (
	"errors"
	"fmt"
)

// ErrorKind categorises StoreError values.
type ErrorKind int

const (
	// KindUnknown is an uncategorised failure.
	KindUnknown ErrorKind = iota
	// KindNotFound indicates the addressed row or document does not exist.
	KindNotFound
	// KindConflict indicates a uniqueness, reference or concurrency violation.
	KindConflict
	// KindUnavailable indicates a transient backend failure.
	KindUnavailable
)

// StoreError implements RepositoryError for the SQL and in-memory backends.
type StoreError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

var _ RepositoryError = (*StoreError)(nil)

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing entity.
func (e *StoreError) IsNotFound() bool { return e != nil && e.Kind == KindNotFound }

// IsConflict reports whether the error represents a conflicting write.
func (e *StoreError) IsConflict() bool { return e != nil && e.Kind == KindConflict }

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Kind == KindUnavailable }

// NewNotFound builds a not-found StoreError.
func NewNotFound(op, format string, args ...any) *StoreError {
	return &StoreError{Op: op, Kind: KindNotFound, Err: fmt.Errorf(format, args...)}
}

// NewConflict builds a conflict StoreError.
func NewConflict(op, format string, args ...any) *StoreError {
	return &StoreError{Op: op, Kind: KindConflict, Err: fmt.Errorf(format, args...)}
}

// NewUnavailable wraps err as a transient StoreError.
func NewUnavailable(op string, err error) *StoreError {
	return &StoreError{Op: op, Kind: KindUnavailable, Err: err}
}

// IsNotFound reports whether err carries a not-found repository error.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries a conflict repository error.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err carries a transient backend failure.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
