package bucketcache

// SweepResult summarizes one [Table.Sweep].
type SweepResult struct {
	Visited int `json:"visited"`
	Removed int `json:"removed"`
	Live    int `json:"live"`
	Pages   int `json:"pages"`
}

// Sweep visits every live record once, stamps creation time on records it
// has not seen before, and evicts the expired ones.
//
// Only one bucket's stripe is held at a time, and evicted values are
// disposed after that stripe is released, so Puts interleave freely with a
// running sweep. It is normally driven by the [Store] scheduler.
func (t *Table) Sweep() SweepResult {
	now := t.clock.Now().UnixNano()
	defaultMaxAge := t.defaultMaxAge.Load()

	var (
		res    SweepResult
		doomed []any
	)

	for b := range t.buckets {
		pg := t.buckets[b].Load()
		if pg == nil {
			continue
		}

		res.Pages++

		mu := t.stripeFor(uint64(b))
		mu.Lock()

		for i := range pg.records {
			rec := &pg.records[i]
			if !rec.live.Load() {
				continue
			}

			res.Visited++

			if rec.created.Load() == 0 {
				rec.created.Store(now)
			}

			maxAge := rec.maxAge.Load()
			if maxAge <= 0 {
				maxAge = defaultMaxAge
			}

			snap := snapshot{absExp: rec.absExp.Load(), created: rec.created.Load()}
			if snap.expired(now, maxAge) {
				doomed = append(doomed, rec.clear())

				continue
			}

			res.Live++
		}

		mu.Unlock()

		res.Removed += len(doomed)
		t.disposeAll(doomed)
		doomed = doomed[:0]
	}

	t.stats.sweeps.Add(1)
	t.stats.sweepVisited.Add(int64(res.Visited))
	t.stats.sweepRemoved.Add(int64(res.Removed))
	t.stats.records.Store(int64(res.Live))
	t.stats.pages.Store(int64(res.Pages))

	return res
}
