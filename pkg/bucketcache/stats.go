package bucketcache

import (
	"sync/atomic"
	"time"
)

// counters are the per-table instrumentation values. Records and pages are
// gauges refreshed by Sweep; everything else only grows.
type counters struct {
	hits            atomic.Int64
	misses          atomic.Int64
	puts            atomic.Int64
	inserts         atomic.Int64
	replaces        atomic.Int64
	collisions      atomic.Int64
	priorityBlocked atomic.Int64
	pageCreates     atomic.Int64
	removeHits      atomic.Int64
	removeMisses    atomic.Int64
	sweeps          atomic.Int64
	sweepVisited    atomic.Int64
	sweepRemoved    atomic.Int64
	disposeErrors   atomic.Int64

	records atomic.Int64
	pages   atomic.Int64
}

// TableStats is a point-in-time copy of a table's counters.
type TableStats struct {
	Name     string `json:"name,omitempty"`
	Buckets  int64  `json:"buckets"`
	Capacity int64  `json:"capacity"`

	// Records and Pages as of the last sweep.
	Records int64 `json:"records"`
	Pages   int64 `json:"pages"`

	// LoadFactor is Records / Capacity; BucketLoad is Pages / Buckets.
	LoadFactor float64 `json:"load_factor"`
	BucketLoad float64 `json:"bucket_load"`

	Hits            int64 `json:"hits"`
	Misses          int64 `json:"misses"`
	Puts            int64 `json:"puts"`
	Inserts         int64 `json:"inserts"`
	Replaces        int64 `json:"replaces"`
	Collisions      int64 `json:"collisions"`
	PriorityBlocked int64 `json:"priority_blocked"`
	PageCreates     int64 `json:"page_creates"`
	RemoveHits      int64 `json:"remove_hits"`
	RemoveMisses    int64 `json:"remove_misses"`
	Sweeps          int64 `json:"sweeps"`
	SweepVisited    int64 `json:"sweep_visited"`
	SweepRemoved    int64 `json:"sweep_removed"`
	DisposeErrors   int64 `json:"dispose_errors"`
}

// Stats returns the table's counters.
func (t *Table) Stats() TableStats {
	s := TableStats{
		Name:            t.name,
		Buckets:         int64(t.opts.BucketCount),
		Capacity:        int64(t.Capacity()),
		Records:         t.stats.records.Load(),
		Pages:           t.stats.pages.Load(),
		Hits:            t.stats.hits.Load(),
		Misses:          t.stats.misses.Load(),
		Puts:            t.stats.puts.Load(),
		Inserts:         t.stats.inserts.Load(),
		Replaces:        t.stats.replaces.Load(),
		Collisions:      t.stats.collisions.Load(),
		PriorityBlocked: t.stats.priorityBlocked.Load(),
		PageCreates:     t.stats.pageCreates.Load(),
		RemoveHits:      t.stats.removeHits.Load(),
		RemoveMisses:    t.stats.removeMisses.Load(),
		Sweeps:          t.stats.sweeps.Load(),
		SweepVisited:    t.stats.sweepVisited.Load(),
		SweepRemoved:    t.stats.sweepRemoved.Load(),
		DisposeErrors:   t.stats.disposeErrors.Load(),
	}

	s.computeRatios()

	return s
}

// add sums o into s. Name is left alone.
func (s *TableStats) add(o TableStats) {
	s.Buckets += o.Buckets
	s.Capacity += o.Capacity
	s.Records += o.Records
	s.Pages += o.Pages
	s.Hits += o.Hits
	s.Misses += o.Misses
	s.Puts += o.Puts
	s.Inserts += o.Inserts
	s.Replaces += o.Replaces
	s.Collisions += o.Collisions
	s.PriorityBlocked += o.PriorityBlocked
	s.PageCreates += o.PageCreates
	s.RemoveHits += o.RemoveHits
	s.RemoveMisses += o.RemoveMisses
	s.Sweeps += o.Sweeps
	s.SweepVisited += o.SweepVisited
	s.SweepRemoved += o.SweepRemoved
	s.DisposeErrors += o.DisposeErrors
}

func (s *TableStats) computeRatios() {
	s.LoadFactor = 0
	s.BucketLoad = 0

	if s.Capacity > 0 {
		s.LoadFactor = float64(s.Records) / float64(s.Capacity)
	}

	if s.Buckets > 0 {
		s.BucketLoad = float64(s.Pages) / float64(s.Buckets)
	}
}

// StoreStats aggregates the stats of every table in a [Store].
type StoreStats struct {
	StoreID         string       `json:"store_id"`
	CollectedAt     time.Time    `json:"collected_at"`
	SchedulerFaults int64        `json:"scheduler_faults"`
	Total           TableStats   `json:"total"`
	Tables          []TableStats `json:"tables"`
}
