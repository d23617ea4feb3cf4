package cachesink_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
	"github.com/calvinalkan/bucketcache/pkg/cachesink"
)

func sampleStats() bucketcache.StoreStats {
	users := bucketcache.TableStats{
		Name: "users", Buckets: 4, Capacity: 32, Records: 8, Pages: 2,
		LoadFactor: 0.25, BucketLoad: 0.5, Hits: 10, Misses: 3, Puts: 9,
		Inserts: 8, Replaces: 1, Collisions: 0, SweepRemoved: 1,
	}
	blobs := bucketcache.TableStats{
		Name: "blobs", Buckets: 2, Capacity: 16, Records: 4, Pages: 1,
		LoadFactor: 0.25, BucketLoad: 0.5, Hits: 1, Puts: 6,
		Inserts: 4, Collisions: 2, PriorityBlocked: 1,
	}

	return bucketcache.StoreStats{
		StoreID:         "7f1c2b7e-5c7c-4d65-8f55-b4c6b0a8b2d1",
		CollectedAt:     time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC),
		SchedulerFaults: 2,
		Total: bucketcache.TableStats{
			Buckets: 6, Capacity: 48, Records: 12, Pages: 3, LoadFactor: 0.25,
			Hits: 11, Misses: 3, Puts: 15, Inserts: 12, Replaces: 1, Collisions: 2,
			PriorityBlocked: 1, SweepRemoved: 1,
		},
		Tables: []bucketcache.TableStats{blobs, users},
	}
}

func Test_FileSink_Writes_Snapshot_That_Reads_Back(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stats.json")
	sink := cachesink.FileSink{Path: path}

	require.NoError(t, sink.Publish(t.Context(), sampleStats()))

	got, err := cachesink.ReadFile(path)
	require.NoError(t, err)

	if diff := cmp.Diff(sampleStats(), got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// A second publish replaces the file.
	next := sampleStats()
	next.SchedulerFaults = 9
	require.NoError(t, sink.Publish(t.Context(), next))

	got, err = cachesink.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.SchedulerFaults)
}

func Test_FileSink_Returns_Error_When_Directory_Missing(t *testing.T) {
	t.Parallel()

	sink := cachesink.FileSink{Path: filepath.Join(t.TempDir(), "missing", "stats.json")}

	err := sink.Publish(t.Context(), sampleStats())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func Test_ReadFile_Returns_Error_When_File_Is_Not_JSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stats.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := cachesink.ReadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func Test_Multi_Publishes_To_All_Sinks_When_One_Fails(t *testing.T) {
	t.Parallel()

	first := errors.New("first failed")

	var calls []string

	sink := cachesink.Multi(
		bucketcache.SinkFunc(func(context.Context, bucketcache.StoreStats) error {
			calls = append(calls, "a")

			return first
		}),
		nil,
		bucketcache.SinkFunc(func(context.Context, bucketcache.StoreStats) error {
			calls = append(calls, "b")

			return nil
		}),
	)

	err := sink.Publish(t.Context(), sampleStats())
	require.ErrorIs(t, err, first)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func Test_PrometheusSink_Emits_Nothing_Before_First_Publish(t *testing.T) {
	t.Parallel()

	sink := cachesink.NewPrometheusSink("")

	assert.Equal(t, 0, testutil.CollectAndCount(sink))
}

func Test_PrometheusSink_Serves_Last_Snapshot(t *testing.T) {
	t.Parallel()

	sink := cachesink.NewPrometheusSink("app")
	require.NoError(t, sink.Publish(t.Context(), sampleStats()))

	const want = `
# HELP app_records Live records as of the last sweep.
# TYPE app_records gauge
app_records{table="blobs"} 4
app_records{table="users"} 8
# HELP app_hits_total Lookups that found a live record.
# TYPE app_hits_total counter
app_hits_total{table="blobs"} 1
app_hits_total{table="users"} 10
# HELP app_scheduler_faults_total Failed sweep cycles.
# TYPE app_scheduler_faults_total counter
app_scheduler_faults_total 2
`

	err := testutil.CollectAndCompare(sink, strings.NewReader(want),
		"app_records", "app_hits_total", "app_scheduler_faults_total")
	require.NoError(t, err)

	// 1 store metric + 9 per table.
	assert.Equal(t, 19, testutil.CollectAndCount(sink))
}

func Test_PrometheusSink_Receives_Stats_From_Store(t *testing.T) {
	t.Parallel()

	sink := cachesink.NewPrometheusSink("")

	store, err := bucketcache.NewStore(bucketcache.WithSink(sink))
	require.NoError(t, err)

	store.Put("orders", 1, "a", bucketcache.PutOptions{})
	store.Put("orders", 2, "b", bucketcache.PutOptions{})

	_, err = store.SweepNow(t.Context())
	require.NoError(t, err)

	const want = `
# HELP bucketcache_records Live records as of the last sweep.
# TYPE bucketcache_records gauge
bucketcache_records{table="orders"} 2
`

	require.NoError(t, testutil.CollectAndCompare(sink, strings.NewReader(want), "bucketcache_records"))
}
