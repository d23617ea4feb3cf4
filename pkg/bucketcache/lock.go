package bucketcache

import (
	"sync"

	"golang.org/x/sys/cpu"
)

// Locking architecture
//
//  1. Store.lifeMu: scheduler lifecycle (Start/Stop). Never held while
//     sweeping.
//
//  2. Store.tables: sync.Map registry. Table creation is LoadOrStore, so
//     at most one Table per name wins without a global lock.
//
//  3. Table stripe locks: bucketIndex % lockCount. Put, Remove and Sweep
//     hold exactly one stripe, for one bucket's page, at a time.
//
//  4. Record.seq: per-slot seqlock. Get takes no lock; it validates its
//     read against seq and retries on overlap.
//
// Disposal always runs after the stripe lock is released.
//
// Lock ordering: Store.lifeMu → stripe lock. No path holds two stripes.

// stripe is a mutex padded to its own cache line so neighbouring stripes do
// not false-share under write load.
type stripe struct {
	_  cpu.CacheLinePad
	mu sync.Mutex
	_  cpu.CacheLinePad
}

func (s *stripe) Lock()   { s.mu.Lock() }
func (s *stripe) Unlock() { s.mu.Unlock() }
