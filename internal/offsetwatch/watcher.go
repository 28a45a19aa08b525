// Package offsetwatch implements the read-your-writes barrier: a
// producer that writes a record at offset N must be able to block until
// the projector has folded offset N into the catalog before returning
// control to its caller. This is a direct port of the original
// implementation's OffsetsWatcher, built on sync.Cond the way Go ports
// of that kind of condition-variable wait usually are.
package offsetwatch

import (
	"context"
	"sync"
)

// Watcher tracks the greatest offset the projector has folded so far
// and lets callers block until a target offset has been reached.
type Watcher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	greatest int64
}

func New() *Watcher {
	w := &Watcher{greatest: -1}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Seen records that offset has been folded into the catalog and wakes
// any blocked waiters whose target it may satisfy. Offsets are expected
// to arrive in non-decreasing order (the projector is the only writer);
// an out-of-order call is ignored rather than regressing greatest.
func (w *Watcher) Seen(offset int64) {
	w.mu.Lock()
	if offset > w.greatest {
		w.greatest = offset
		w.cond.Broadcast()
	}
	w.mu.Unlock()
}

// Greatest returns the highest offset folded so far, or -1 if none.
func (w *Watcher) Greatest() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.greatest
}

// WaitFor blocks until target has been folded or ctx is done. Returns
// true if target was reached.
func (w *Watcher) WaitFor(ctx context.Context, target int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.greatest < target {
		if ctx.Err() != nil {
			return false
		}
		stop := context.AfterFunc(ctx, func() {
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		})
		w.cond.Wait()
		stop()
		if ctx.Err() != nil {
			return w.greatest >= target
		}
	}
	return true
}
