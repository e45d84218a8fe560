// Package guard provides the single-flight lock that keeps a checkout from
// submitting two payments at once.
package guard

import (
	"context"
	"sync/atomic"

	"github.com/utafrali/paycheckout/internal/domain"
)

// Guard admits at most one payment attempt at a time. Release is idempotent
// and must be called on every exit path of an attempt that acquired it.
type Guard interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context)
	IsPaying() bool
}

// Local is an in-process guard.
type Local struct {
	paying atomic.Bool
}

// NewLocal returns a free in-process guard.
func NewLocal() *Local {
	return &Local{}
}

// Acquire takes the guard or returns domain.ErrAlreadyInFlight.
func (g *Local) Acquire(_ context.Context) error {
	if !g.paying.CompareAndSwap(false, true) {
		return domain.ErrAlreadyInFlight
	}
	return nil
}

// Release frees the guard.
func (g *Local) Release(_ context.Context) {
	g.paying.Store(false)
}

// IsPaying reports whether an attempt holds the guard.
func (g *Local) IsPaying() bool {
	return g.paying.Load()
}

var (
	_ Guard = (*Local)(nil)
	_ Guard = (*Redis)(nil)
)
