package bucketcache_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/calvinalkan/bucketcache/internal/testutil"
	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
)

// payload is a disposable test value that remembers the key it was put under.
type payload struct {
	key      uint64
	disposed atomic.Int32
}

func (p *payload) Dispose() error {
	p.disposed.Add(1)

	return nil
}

type failingValue struct{}

func (failingValue) Dispose() error { return errors.New("dispose failed") }

type panickingValue struct{}

func (panickingValue) Dispose() error { panic("boom") }

type closer struct {
	closed atomic.Int32
}

func (c *closer) Close() error {
	c.closed.Add(1)

	return nil
}

func newTestTable(t *testing.T, opts bucketcache.TableOptions) (*bucketcache.Table, *testutil.Clock) {
	t.Helper()

	clock := testutil.NewClock()

	tbl, err := bucketcache.NewTable(opts,
		bucketcache.WithTableName("test"),
		bucketcache.WithTableClock(clock),
	)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	return tbl, clock
}

// keysInSameBucket returns n distinct keys that all map to the same bucket.
func keysInSameBucket(t *testing.T, tbl *bucketcache.Table, n int) []uint64 {
	t.Helper()

	target := bucketcache.BucketIndexForTesting(tbl, 1)
	keys := []uint64{1}

	for k := uint64(2); len(keys) < n; k++ {
		if k > 1_000_000 {
			t.Fatalf("could not find %d keys sharing a bucket", n)
		}

		if bucketcache.BucketIndexForTesting(tbl, k) == target {
			keys = append(keys, k)
		}
	}

	return keys
}

func liveCount(tbl *bucketcache.Table) int {
	n := 0

	tbl.Range(func(*bucketcache.Record) bool {
		n++

		return true
	})

	return n
}

func newTestStore(t *testing.T, cfg bucketcache.Config, opts ...bucketcache.StoreOption) *bucketcache.Store {
	t.Helper()

	store, err := bucketcache.NewStore(append([]bucketcache.StoreOption{bucketcache.WithConfig(cfg)}, opts...)...)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	return store
}
