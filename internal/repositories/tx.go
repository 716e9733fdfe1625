package repositories

import "context"

type txMarkerKey struct{}

// ContextWithTx marks ctx as running inside a unit of work. UnitOfWork implementations call it before
// handing the context to the transactional function.
func ContextWithTx(ctx context.Context) context.Context {
	return context.WithValue(ctx, txMarkerKey{}, true)
}

// InTx reports whether ctx belongs to a running unit of work. Read-through caches bypass themselves
// inside transactions so that reads are served by the transactional backend.
func InTx(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	marked, _ := ctx.Value(txMarkerKey{}).(bool)
	return marked
}
