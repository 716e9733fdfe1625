package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes mapped to repository semantics.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
)

// Error implements repositories.RepositoryError for Postgres backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// WrapError classifies pgx errors. Context errors and errors that already carry a classification pass
// through unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var classified interface{ IsNotFound() bool }
	if errors.As(err, &classified) {
		return err
	}

	e := &Error{op: op, err: err}
	if errors.Is(err, pgx.ErrNoRows) {
		e.notFound = true
		return e
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeForeignKeyViolation, codeCheckViolation, codeSerialization, codeDeadlock:
			e.conflict = true
		}
		return e
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		e.unavailable = true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		e.unavailable = true
	}
	return e
}
