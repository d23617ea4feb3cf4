package bucketcache

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Record is one slot of a page: a cached value plus its expiry metadata.
//
// Records live in their page for the lifetime of the table and are reused in
// place by every Put that lands in the slot. All accessors are lock free and
// may observe a slightly stale state. A *Record returned by Get keeps
// pointing at the same slot, so once the slot is reused for another key the
// accessors describe the new occupant. Read what you need right away.
type Record struct {
	// seq is a per-slot sequence counter. Writers (holding the stripe lock)
	// make it odd before mutating and even after. Readers retry when it is
	// odd or changed across their read.
	seq atomic.Uint64

	live     atomic.Bool
	key      atomic.Uint64
	value    atomic.Pointer[box]
	meta     atomic.Pointer[box]
	maxAge   atomic.Int64
	absExp   atomic.Int64 // unix nanos, 0 = unset
	priority atomic.Int64
	hits     atomic.Int64
	created  atomic.Int64 // unix nanos, 0 until the first sweep visit

	tbl    *Table
	bucket uint64
}

// box gives values of any dynamic type a single pointer to swap.
type box struct {
	v any
}

// snapshot is a seqlock-validated view of one occupancy of a record.
type snapshot struct {
	value   any
	meta    any
	maxAge  int64
	absExp  int64
	created int64
}

// Key returns the 64-bit key of the current occupant.
func (r *Record) Key() uint64 { return r.key.Load() }

// Value returns the current value, or nil for an empty slot.
func (r *Record) Value() any {
	b := r.value.Load()
	if b == nil {
		return nil
	}

	return b.v
}

// Meta returns the original complex key stored by a [Keyed] adapter.
func (r *Record) Meta() any {
	b := r.meta.Load()
	if b == nil {
		return nil
	}

	return b.v
}

// MaxAgeSec returns the record's own max age; 0 means the table default.
func (r *Record) MaxAgeSec() int64 { return r.maxAge.Load() }

// Priority returns the priority the record was put with.
func (r *Record) Priority() int64 { return r.priority.Load() }

// HitCount returns the number of Gets served by the current occupant.
func (r *Record) HitCount() int64 { return r.hits.Load() }

// AbsoluteExpiration returns the absolute expiry, or the zero time.
func (r *Record) AbsoluteExpiration() time.Time {
	ns := r.absExp.Load()
	if ns == 0 {
		return time.Time{}
	}

	return time.Unix(0, ns).UTC()
}

// Created returns when a sweep first saw the current occupant, or the zero
// time if no sweep has visited it yet.
func (r *Record) Created() time.Time {
	ns := r.created.Load()
	if ns == 0 {
		return time.Time{}
	}

	return time.Unix(0, ns).UTC()
}

// AgeSec returns whole seconds since [Record.Created], or 0 before the first
// sweep visit.
func (r *Record) AgeSec() int64 {
	ns := r.created.Load()
	if ns == 0 {
		return 0
	}

	age := r.tbl.clock.Now().UnixNano() - ns
	if age < 0 {
		return 0
	}

	return age / int64(time.Second)
}

// CompareAndSwapValue replaces the value with next if the slot still holds
// old from the same occupancy. Uncomparable values never match. The replaced
// value is disposed.
func (r *Record) CompareAndSwapValue(old, next any) bool {
	mu := r.tbl.stripeFor(r.bucket)
	mu.Lock()

	cur := r.value.Load()
	if cur == nil || !r.live.Load() || !sameValue(cur.v, old) {
		mu.Unlock()

		return false
	}

	r.seq.Add(1)
	r.value.Store(&box{v: next})
	r.seq.Add(1)

	mu.Unlock()

	if !sameValue(old, next) {
		r.tbl.dispose(old)
	}

	return true
}

// read returns a consistent snapshot of the record if it is live and holds
// key. It never blocks; after readMaxRetries overlapping writes it gives up.
func (r *Record) read(key uint64) (snapshot, bool) {
	for range readMaxRetries {
		s1 := r.seq.Load()
		if s1&1 == 1 {
			runtime.Gosched()

			continue
		}

		if !r.live.Load() || r.key.Load() != key {
			return snapshot{}, false
		}

		snap := snapshot{
			maxAge:  r.maxAge.Load(),
			absExp:  r.absExp.Load(),
			created: r.created.Load(),
		}

		if b := r.value.Load(); b != nil {
			snap.value = b.v
		}

		if b := r.meta.Load(); b != nil {
			snap.meta = b.v
		}

		if r.seq.Load() == s1 {
			return snap, true
		}
	}

	return snapshot{}, false
}

// reuse installs a new occupant. Caller holds the stripe lock. Returns the
// outgoing value when the slot was live.
func (r *Record) reuse(key uint64, value, meta any, opts PutOptions) (any, bool) {
	r.seq.Add(1)

	wasLive := r.live.Load()

	var old any
	if b := r.value.Load(); b != nil {
		old = b.v
	}

	maxAge := opts.MaxAgeSec
	if maxAge < 0 {
		maxAge = 0
	}

	var absExp int64
	if !opts.AbsoluteExpiration.IsZero() {
		absExp = opts.AbsoluteExpiration.UnixNano()
	}

	r.key.Store(key)
	r.maxAge.Store(maxAge)
	r.absExp.Store(absExp)
	r.priority.Store(opts.Priority)
	r.hits.Store(0)
	r.created.Store(0)

	if meta != nil {
		r.meta.Store(&box{v: meta})
	} else {
		r.meta.Store(nil)
	}

	r.value.Store(&box{v: value})
	r.live.Store(true)

	r.seq.Add(1)

	return old, wasLive
}

// clear empties the slot. Caller holds the stripe lock.
func (r *Record) clear() any {
	r.seq.Add(1)

	var old any
	if b := r.value.Swap(nil); b != nil {
		old = b.v
	}

	r.live.Store(false)
	r.key.Store(0)
	r.meta.Store(nil)
	r.maxAge.Store(0)
	r.absExp.Store(0)
	r.priority.Store(0)
	r.hits.Store(0)
	r.created.Store(0)

	r.seq.Add(1)

	return old
}

// mayExpire reports whether expired needs a clock reading at all.
func (s snapshot) mayExpire(maxAgeSec int64) bool {
	return s.absExp != 0 || (maxAgeSec > 0 && s.created != 0)
}

// expired reports whether snap is past its absolute expiry, or older than
// maxAgeSec. A zero maxAgeSec never expires on age.
func (s snapshot) expired(nowNanos, maxAgeSec int64) bool {
	if s.absExp != 0 {
		return nowNanos >= s.absExp
	}

	if maxAgeSec <= 0 || s.created == 0 {
		return false
	}

	return nowNanos-s.created > maxAgeSec*int64(time.Second)
}

// sameValue is a == b that treats uncomparable values as different.
func sameValue(a, b any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()

	return a == b
}
