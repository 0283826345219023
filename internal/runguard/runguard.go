// Package runguard serializes pipeline runs. Only one ingestion or
// analysis run may be in flight at a time; callers racing for the slot
// get ErrBusy instead of queueing.
package runguard

import (
	"errors"
	"sync/atomic"
)

// ErrBusy signals that a run is already in progress.
var ErrBusy = errors.New("a run is already in progress")

// Guard is a non-blocking single-slot mutex. The zero value is ready to use.
type Guard struct {
	busy atomic.Bool
}

// TryStart claims the run slot. It returns ErrBusy without blocking when
// another run holds it.
func (g *Guard) TryStart() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

// Finish releases the run slot. Calling Finish without a matching TryStart
// leaves the guard released.
func (g *Guard) Finish() {
	g.busy.Store(false)
}

// Busy reports whether a run currently holds the slot.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}
