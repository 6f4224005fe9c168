package residency

import (
	"sync/atomic"
	"time"
)

// Epoch is the process-wide invalidation marker. It stores the tick of the
// last destructive eviction; any component that recorded a Stamp at creation
// time can ask IsFresh to learn whether its derived state predates the last
// invalidation. Construct once at process start and share by reference.
type Epoch struct {
	last atomic.Int64
}

// NewEpoch returns an epoch with a zero baseline, so stamps taken before the
// first Bump are always fresh.
func NewEpoch() *Epoch { return &Epoch{} }

// Stamp returns a creation timestamp to be saved by dependent caches.
func (e *Epoch) Stamp() int64 { return time.Now().UnixNano() }

// Current returns the tick of the most recent invalidation.
func (e *Epoch) Current() int64 { return e.last.Load() }

// Bump records an invalidation. The stored value strictly increases on every
// call even if the wall clock did not advance.
func (e *Epoch) Bump() {
	now := time.Now().UnixNano()
	for {
		cur := e.last.Load()
		next := now
		if next <= cur {
			next = cur + 1
		}
		if e.last.CompareAndSwap(cur, next) {
			return
		}
	}
}

// IsFresh reports whether a saved stamp postdates the last invalidation.
func (e *Epoch) IsFresh(saved int64) bool { return saved > e.last.Load() }
