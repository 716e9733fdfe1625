package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorKind uint8

const (
	kindOther errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// kindByCode classifies the gRPC codes repositories care about. Aborted means a transaction lost a
// contention race and FailedPrecondition a failed Create or update precondition; both surface as conflicts
// so the order engine reports them as 409.
var kindByCode = map[codes.Code]errorKind{
	codes.NotFound:           kindNotFound,
	codes.AlreadyExists:      kindConflict,
	codes.Aborted:            kindConflict,
	codes.FailedPrecondition: kindConflict,
	codes.OutOfRange:         kindConflict,
	codes.Unavailable:        kindUnavailable,
	codes.ResourceExhausted:  kindUnavailable,
	codes.Internal:           kindUnavailable,
}

// Error implements repositories.RepositoryError for Firestore failures.
type Error struct {
	op   string
	code codes.Code
	kind errorKind
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op == "" {
		return fmt.Sprintf("firestore %s: %v", e.code, e.err)
	}
	return fmt.Sprintf("%s: firestore %s: %v", e.op, e.code, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Code returns the gRPC status code reported by Firestore.
func (e *Error) Code() codes.Code {
	if e == nil {
		return codes.OK
	}
	return e.code
}

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// WrapError attaches repository semantics to gRPC errors returned by the Firestore client. Cancellation and
// deadline errors become the matching context errors; errors that did not come from gRPC, such as those
// returned by repository code inside a transaction, pass through untouched.
func WrapError(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var existing *Error
	if errors.As(err, &existing) {
		if existing.op == "" {
			existing.op = op
		}
		return existing
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return &Error{op: op, code: st.Code(), kind: kindByCode[st.Code()], err: err}
}
