package bucketcache

import (
	"testing"
	"time"

	"github.com/calvinalkan/bucketcache/internal/testutil"
)

// modelRecord is the reference state of one slot.
type modelRecord struct {
	live     bool
	key      uint64
	value    uint64
	priority int64
	maxAge   int64
	created  int64
}

// tableModel is a slow, obviously correct rendition of Table used as the
// oracle for fuzzing.
type tableModel struct {
	buckets       [][]modelRecord
	defaultMaxAge int64
}

func newTableModel(opts TableOptions) *tableModel {
	m := &tableModel{
		buckets:       make([][]modelRecord, opts.BucketCount),
		defaultMaxAge: opts.DefaultMaxAgeSec,
	}

	for i := range m.buckets {
		m.buckets[i] = make([]modelRecord, opts.RecordsPerPage)
	}

	return m
}

func (m *tableModel) page(key uint64) []modelRecord {
	return m.buckets[bucketFor(key, uint64(len(m.buckets)))]
}

func (m *tableModel) put(op testutil.Op) bool {
	pg := m.page(op.Key)

	slot := -1

	for i := range pg {
		if pg[i].live && pg[i].key == op.Key {
			slot = i

			break
		}
	}

	if slot < 0 {
		for i := range pg {
			if !pg[i].live {
				slot = i

				break
			}
		}
	}

	if slot < 0 {
		lowest := 0
		for i := range pg {
			if pg[i].priority < pg[lowest].priority {
				lowest = i
			}
		}

		if op.Priority < pg[lowest].priority {
			return false
		}

		slot = lowest
	}

	pg[slot] = modelRecord{
		live:     true,
		key:      op.Key,
		value:    op.Value,
		priority: op.Priority,
		maxAge:   op.MaxAgeSec,
	}

	return true
}

func (m *tableModel) maxAge(r modelRecord) int64 {
	if r.maxAge > 0 {
		return r.maxAge
	}

	return m.defaultMaxAge
}

func (m *tableModel) expired(r modelRecord, now int64) bool {
	age := m.maxAge(r)

	return age > 0 && r.created != 0 && now-r.created > age*int64(time.Second)
}

func (m *tableModel) get(key uint64, now int64) (uint64, bool) {
	for _, r := range m.page(key) {
		if r.live && r.key == key {
			if m.expired(r, now) {
				return 0, false
			}

			return r.value, true
		}
	}

	return 0, false
}

func (m *tableModel) remove(key uint64) bool {
	pg := m.page(key)

	for i := range pg {
		if pg[i].live && pg[i].key == key {
			pg[i] = modelRecord{}

			return true
		}
	}

	return false
}

func (m *tableModel) sweep(now int64) int {
	removed := 0

	for _, pg := range m.buckets {
		for i := range pg {
			if !pg[i].live {
				continue
			}

			if pg[i].created == 0 {
				pg[i].created = now
			}

			if m.expired(pg[i], now) {
				pg[i] = modelRecord{}
				removed++
			}
		}
	}

	return removed
}

func (m *tableModel) live() int {
	n := 0

	for _, pg := range m.buckets {
		for _, r := range pg {
			if r.live {
				n++
			}
		}
	}

	return n
}

func FuzzTable_MatchesModel(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00, 0x01, 0x02, 0x03, 0x04})
	f.Add([]byte("bucketcache"))
	f.Add(make([]byte, 256))

	// put(1, prio 3, max age 1), put(2, prio 0, max age 2), sweep,
	// advance 2s, get(1), sweep, get(2).
	f.Add([]byte{0, 1, 7, 3, 1, 0, 2, 8, 0, 2, 3, 4, 2, 1, 1, 3, 1, 2})

	opts := TableOptions{BucketCount: 4, RecordsPerPage: 2, LockCount: 2, DefaultMaxAgeSec: 3}

	f.Fuzz(func(t *testing.T, data []byte) {
		clock := testutil.NewClock()

		tbl, err := NewTable(opts, WithTableClock(clock), WithTableName("fuzz"))
		if err != nil {
			t.Fatalf("NewTable: %v", err)
		}

		model := newTableModel(opts)
		stream := testutil.NewByteStream(data)

		for step := 0; stream.HasMore() && step < 512; step++ {
			op := stream.NextOp(16)
			now := clock.Now().UnixNano()

			switch op.Kind {
			case testutil.OpPut:
				got, _ := tbl.Put(op.Key, op.Value, PutOptions{Priority: op.Priority, MaxAgeSec: op.MaxAgeSec})
				if want := model.put(op); got != want {
					t.Fatalf("step %d %s: inserted=%v, want %v", step, op, got, want)
				}
			case testutil.OpGet:
				v, got := tbl.Lookup(op.Key, 0)
				wantV, want := model.get(op.Key, now)

				if got != want {
					t.Fatalf("step %d %s: found=%v, want %v", step, op, got, want)
				}

				if got && v != wantV {
					t.Fatalf("step %d %s: value=%v, want %d", step, op, v, wantV)
				}
			case testutil.OpRemove:
				if got, want := tbl.Remove(op.Key), model.remove(op.Key); got != want {
					t.Fatalf("step %d %s: removed=%v, want %v", step, op, got, want)
				}
			case testutil.OpSweep:
				res := tbl.Sweep()
				if want := model.sweep(now); res.Removed != want {
					t.Fatalf("step %d %s: swept %d, want %d", step, op, res.Removed, want)
				}
			case testutil.OpAdvance:
				clock.Advance(op.Advance)
			}

			if got, want := countLive(tbl), model.live(); got != want {
				t.Fatalf("step %d %s: %d live records, want %d", step, op, got, want)
			}
		}
	})
}

func countLive(tbl *Table) int {
	n := 0

	tbl.Range(func(*Record) bool {
		n++

		return true
	})

	return n
}
