package bucketcache_test

import (
	"flag"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/bucketcache/internal/testutil"
	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
)

// Override via: go test ./pkg/bucketcache -run Concurrent -bucketcache.stress=10s.
var flagStress = flag.Duration("bucketcache.stress", 300*time.Millisecond, "duration for bucketcache concurrency stress tests")

func Test_Concurrent_Readers_Never_See_Foreign_Values(t *testing.T) {
	t.Parallel()

	tbl, clock := newTestTable(t, bucketcache.TableOptions{BucketCount: 16, RecordsPerPage: 4, LockCount: 4, DefaultMaxAgeSec: 2})

	const keySpace = 256

	var (
		wg      sync.WaitGroup
		stop    atomic.Bool
		mu      sync.Mutex
		created []*payload
		foreign atomic.Int64
	)

	for w := range 4 {
		wg.Go(func() {
			rng := rand.New(rand.NewPCG(uint64(w), 1))

			for !stop.Load() {
				key := rng.Uint64N(keySpace)

				switch rng.IntN(10) {
				case 0:
					tbl.Remove(key)
				default:
					p := &payload{key: key}

					ok, _ := tbl.Put(key, p, bucketcache.PutOptions{Priority: rng.Int64N(3)})
					if !ok {
						continue
					}

					mu.Lock()
					created = append(created, p)
					mu.Unlock()
				}
			}
		})
	}

	for range 4 {
		wg.Go(func() {
			rng := rand.New(rand.NewPCG(99, 7))

			for !stop.Load() {
				key := rng.Uint64N(keySpace)

				v, ok := tbl.Lookup(key, 0)
				if !ok {
					continue
				}

				if p, _ := v.(*payload); p == nil || p.key != key {
					foreign.Add(1)
				}
			}
		})
	}

	wg.Go(func() {
		for !stop.Load() {
			tbl.Sweep()
			clock.Advance(500 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	})

	time.Sleep(*flagStress)
	stop.Store(true)
	wg.Wait()

	tbl.Clear()

	assert.Zero(t, foreign.Load(), "readers saw values stored under another key")

	require.NotEmpty(t, created)

	for _, p := range created {
		require.Equal(t, int32(1), p.disposed.Load(), "payload for key %d disposed %d times", p.key, p.disposed.Load())
	}

	assert.Equal(t, 0, liveCount(tbl))
}

func Test_Concurrent_Store_Operations_While_Sweeper_Runs(t *testing.T) {
	t.Parallel()

	cfg := bucketcache.DefaultConfig()
	cfg.SweepInterval = bucketcache.Duration(10 * time.Millisecond)
	cfg.SweepJitter = bucketcache.Duration(5 * time.Millisecond)
	cfg.ParallelSweep = true
	cfg.DefaultTable = bucketcache.TableOptions{BucketCount: 32, RecordsPerPage: 4}

	store := newTestStore(t, cfg, bucketcache.WithClock(testutil.NewClock()))
	require.NoError(t, store.Start())

	tables := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup

	deadline := time.Now().Add(*flagStress)

	for w := range 6 {
		wg.Go(func() {
			rng := rand.New(rand.NewPCG(uint64(w), 3))

			for time.Now().Before(deadline) {
				name := tables[rng.IntN(len(tables))]
				key := rng.Uint64N(128)

				switch rng.IntN(20) {
				case 0:
					store.DropTable(name)
				case 1, 2, 3:
					store.Remove(name, key)
				case 4, 5, 6, 7, 8, 9:
					store.Put(name, key, key, bucketcache.PutOptions{})
				default:
					if v, ok := store.Get(name, key, 0); ok && v != key {
						t.Errorf("Get(%s, %d) = %v", name, key, v)

						return
					}
				}
			}
		})
	}

	wg.Wait()

	require.NoError(t, store.Stop(t.Context()))

	for _, name := range store.Tables() {
		tbl, ok := store.Table(name)
		require.True(t, ok)
		assert.Equal(t, 0, liveCount(tbl), "table %s not cleared on stop", name)
	}
}

func Test_Concurrent_CompareAndSwap_And_Put_Dispose_Each_Value_Once(t *testing.T) {
	t.Parallel()

	tbl, _ := newTestTable(t, bucketcache.TableOptions{BucketCount: 1, RecordsPerPage: 2, LockCount: 1})

	for i := range 2000 {
		start := &payload{key: 1}
		swapped := &payload{key: 1}
		replaced := &payload{key: 1}

		_, rec := tbl.Put(1, start, bucketcache.PutOptions{})
		require.NotNil(t, rec)

		var (
			wg    sync.WaitGroup
			casOK atomic.Bool
		)

		wg.Go(func() { casOK.Store(rec.CompareAndSwapValue(start, swapped)) })
		wg.Go(func() { tbl.Put(1, replaced, bucketcache.PutOptions{}) })
		wg.Wait()

		require.True(t, tbl.Remove(1), "iteration %d", i)

		wantSwapped := int32(0)
		if casOK.Load() {
			wantSwapped = 1
		}

		assert.Equal(t, int32(1), start.disposed.Load(), "iteration %d: start", i)
		assert.Equal(t, wantSwapped, swapped.disposed.Load(), "iteration %d: swapped", i)
		assert.Equal(t, int32(1), replaced.disposed.Load(), "iteration %d: replaced", i)
	}
}
