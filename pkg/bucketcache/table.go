package bucketcache

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Table is a fixed-capacity two-level hash table of [Record]s.
//
// Buckets are addressed by a Fibonacci hash of the key. Each bucket holds at
// most one page of records, created on the first write to it. The table
// never resizes.
//
// Get is lock free. Put and Remove lock the one stripe that owns the target
// bucket. All methods are safe for concurrent use.
type Table struct {
	name    string
	opts    TableOptions
	buckets []atomic.Pointer[page]
	stripes []stripe

	defaultMaxAge atomic.Int64

	clock  Clock
	logger *slog.Logger

	stats counters
}

// page is the fixed array of records occupying one bucket.
type page struct {
	records []Record
}

// placement is the outcome of choosing a slot for a Put.
type placement int

const (
	placeInsert placement = iota
	placeReplace
	placeCollision
	placeBlocked
)

// NewTable creates a table shaped by opts.
//
// Possible errors: [ErrInvalidOptions].
func NewTable(opts TableOptions, options ...TableOption) (*Table, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	return newTable(normalized, options...), nil
}

// newTable builds a table from already normalized options.
func newTable(opts TableOptions, options ...TableOption) *Table {
	t := &Table{
		opts:    opts,
		buckets: make([]atomic.Pointer[page], opts.BucketCount),
		stripes: make([]stripe, opts.LockCount),
		clock:   systemClock{},
		logger:  discardLogger,
	}

	t.defaultMaxAge.Store(opts.DefaultMaxAgeSec)

	for _, o := range options {
		o(t)
	}

	return t
}

// Name returns the table's registry name.
func (t *Table) Name() string { return t.name }

// Options returns the normalized options the table was built with. The
// default max age reflects later reconfiguration.
func (t *Table) Options() TableOptions {
	o := t.opts
	o.DefaultMaxAgeSec = t.defaultMaxAge.Load()

	return o
}

// Capacity returns the total number of record slots.
func (t *Table) Capacity() int {
	return t.opts.BucketCount * t.opts.RecordsPerPage
}

// Get returns the live, unexpired record for key, or nil.
//
// maxAgeOverrideSec, when > 0, replaces the record's effective max age for
// this lookup. Expired records count as misses and are left for Sweep.
func (t *Table) Get(key uint64, maxAgeOverrideSec int64) *Record {
	rec, _, ok := t.get(key, maxAgeOverrideSec)
	if !ok {
		return nil
	}

	return rec
}

// Lookup is Get returning the value as it was at the moment of the hit.
func (t *Table) Lookup(key uint64, maxAgeOverrideSec int64) (any, bool) {
	_, v, ok := t.get(key, maxAgeOverrideSec)

	return v, ok
}

func (t *Table) get(key uint64, override int64) (*Record, any, bool) {
	rec, snap, ok := t.probe(key, nil)
	if !ok {
		t.stats.misses.Add(1)

		return nil, nil, false
	}

	return t.hit(rec, snap, override)
}

// probe scans key's page without locking and without touching counters.
// match, when set, must accept the record's meta.
func (t *Table) probe(key uint64, match func(meta any) bool) (*Record, snapshot, bool) {
	pg := t.buckets[t.bucketIndex(key)].Load()
	if pg == nil {
		return nil, snapshot{}, false
	}

	for i := range pg.records {
		rec := &pg.records[i]

		snap, ok := rec.read(key)
		if !ok {
			continue
		}

		if match != nil && !match(snap.meta) {
			continue
		}

		return rec, snap, true
	}

	return nil, snapshot{}, false
}

// hit applies expiry to a probed record and updates hit/miss counters.
func (t *Table) hit(rec *Record, snap snapshot, override int64) (*Record, any, bool) {
	maxAge := t.effectiveMaxAge(snap.maxAge, override)

	if snap.mayExpire(maxAge) && snap.expired(t.clock.Now().UnixNano(), maxAge) {
		t.stats.misses.Add(1)

		return nil, nil, false
	}

	rec.hits.Add(1)
	t.stats.hits.Add(1)

	return rec, snap.value, true
}

func (t *Table) effectiveMaxAge(recordMaxAge, override int64) int64 {
	switch {
	case override > 0:
		return override
	case recordMaxAge > 0:
		return recordMaxAge
	default:
		return t.defaultMaxAge.Load()
	}
}

// Put stores value under key.
//
// A record already holding key is always replaced. Otherwise the value goes
// into a free slot of the bucket's page. When the page is full, the record
// with the lowest priority is evicted if opts.Priority is at least as high;
// if not, nothing changes and Put returns false, nil.
func (t *Table) Put(key uint64, value any, opts PutOptions) (bool, *Record) {
	return t.put(key, value, nil, opts)
}

func (t *Table) put(key uint64, value, meta any, opts PutOptions) (bool, *Record) {
	t.stats.puts.Add(1)

	b := t.bucketIndex(key)
	mu := t.stripeFor(b)

	mu.Lock()

	pg := t.buckets[b].Load()
	if pg == nil {
		pg = t.newPage(b)
		t.buckets[b].Store(pg)
		t.stats.pageCreates.Add(1)
	}

	slot, outcome := pg.place(key, opts.Priority)
	if outcome == placeBlocked {
		mu.Unlock()
		t.stats.priorityBlocked.Add(1)

		return false, nil
	}

	rec := &pg.records[slot]
	old, hadOld := rec.reuse(key, value, meta, opts)

	mu.Unlock()

	switch outcome {
	case placeInsert:
		t.stats.inserts.Add(1)
	case placeReplace:
		t.stats.replaces.Add(1)
	case placeCollision:
		t.stats.collisions.Add(1)
	}

	if hadOld && !sameValue(old, value) {
		t.dispose(old)
	}

	return true, rec
}

// place picks the slot for key. Caller holds the page's stripe lock.
func (p *page) place(key uint64, priority int64) (int, placement) {
	empty := -1
	lowest := -1

	var lowestPriority int64

	for i := range p.records {
		rec := &p.records[i]

		if !rec.live.Load() {
			if empty < 0 {
				empty = i
			}

			continue
		}

		if rec.key.Load() == key {
			return i, placeReplace
		}

		if pr := rec.priority.Load(); lowest < 0 || pr < lowestPriority {
			lowest = i
			lowestPriority = pr
		}
	}

	if empty >= 0 {
		return empty, placeInsert
	}

	if priority >= lowestPriority {
		return lowest, placeCollision
	}

	return -1, placeBlocked
}

// Remove clears the record for key. Reports whether one was found.
func (t *Table) Remove(key uint64) bool {
	return t.remove(key, nil)
}

func (t *Table) remove(key uint64, match func(meta any) bool) bool {
	b := t.bucketIndex(key)
	mu := t.stripeFor(b)

	mu.Lock()

	var (
		old   any
		found bool
	)

	if pg := t.buckets[b].Load(); pg != nil {
		for i := range pg.records {
			rec := &pg.records[i]
			if !rec.live.Load() || rec.key.Load() != key {
				continue
			}

			if match != nil && !match(rec.Meta()) {
				continue
			}

			old = rec.clear()
			found = true

			break
		}
	}

	mu.Unlock()

	if !found {
		t.stats.removeMisses.Add(1)

		return false
	}

	t.stats.removeHits.Add(1)
	t.dispose(old)

	return true
}

// Clear removes every record and disposes the values. Returns the number of
// records removed.
func (t *Table) Clear() int {
	removed := 0

	var doomed []any

	for b := range t.buckets {
		pg := t.buckets[b].Load()
		if pg == nil {
			continue
		}

		mu := t.stripeFor(uint64(b))
		mu.Lock()

		for i := range pg.records {
			rec := &pg.records[i]
			if rec.live.Load() {
				doomed = append(doomed, rec.clear())
			}
		}

		mu.Unlock()

		removed += len(doomed)
		t.disposeAll(doomed)
		doomed = doomed[:0]
	}

	t.stats.records.Store(0)

	return removed
}

// Range calls fn for each live record until fn returns false. It takes no
// locks; records put or removed during the walk may or may not be seen.
func (t *Table) Range(fn func(*Record) bool) {
	for b := range t.buckets {
		pg := t.buckets[b].Load()
		if pg == nil {
			continue
		}

		for i := range pg.records {
			rec := &pg.records[i]
			if !rec.live.Load() {
				continue
			}

			if !fn(rec) {
				return
			}
		}
	}
}

// String implements fmt.Stringer.
func (t *Table) String() string {
	return fmt.Sprintf("Table(%s, buckets=%d, records_per_page=%d, locks=%d)",
		t.name, t.opts.BucketCount, t.opts.RecordsPerPage, t.opts.LockCount)
}

func (t *Table) bucketIndex(key uint64) uint64 {
	return bucketFor(key, uint64(len(t.buckets)))
}

func (t *Table) stripeFor(bucket uint64) *stripe {
	return &t.stripes[bucket%uint64(len(t.stripes))]
}

func (t *Table) newPage(bucket uint64) *page {
	pg := &page{records: make([]Record, t.opts.RecordsPerPage)}
	for i := range pg.records {
		pg.records[i].tbl = t
		pg.records[i].bucket = bucket
	}

	return pg
}

func (t *Table) disposeAll(values []any) {
	for i, v := range values {
		t.dispose(v)
		values[i] = nil
	}
}

func (t *Table) setDefaultMaxAge(sec int64) {
	t.defaultMaxAge.Store(sec)
}
