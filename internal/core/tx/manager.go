// Package tx lets the allocation service commit a stock save and its
// allocation record as one unit, whichever store holds them.
package tx

import (
	"context"
)

// Manager runs fn as one unit of work. The postgres store opens a
// transaction that the stock and record repositories join through ctx, so a
// failed record insert also undoes the stock version bump. Nested calls join
// the outer unit.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Noop is the Manager for the memory and redis stores. Their stock save is
// already a compare-and-swap, so fn runs as is and every repository call
// commits on its own.
type Noop struct{}

func (Noop) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ Manager = Noop{}
