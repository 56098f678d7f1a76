package security

import (
	"sync/atomic"

	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
)

// Guard is the process-wide re-entry latch around distribution. Database
// transactions already serialize the counters; the guard exists so a second
// overlapping fulfillment is refused up front instead of queueing behind row
// locks mid-flight.
type Guard struct {
	busy atomic.Bool
}

// NewGuard returns an open guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Enter claims the latch. It returns a retryable re-entry error when another
// distribution holds it.
func (g *Guard) Enter() error {
	if !g.busy.CompareAndSwap(false, true) {
		return pkgerrors.New(pkgerrors.CodeReentry, "distribution already in progress")
	}
	return nil
}

// Exit releases the latch. Safe to defer immediately after a successful Enter.
func (g *Guard) Exit() {
	g.busy.Store(false)
}
