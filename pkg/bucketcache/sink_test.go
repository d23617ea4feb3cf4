package bucketcache_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
)

func Test_LogSink_Groups_Counters_Under_Stats_When_Publishing(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := bucketcache.LogSink{Logger: log, Level: slog.LevelInfo}

	stats := bucketcache.StoreStats{
		StoreID: "s1",
		Total:   bucketcache.TableStats{Records: 3, Sweeps: 2, SweepVisited: 5},
		Tables: []bucketcache.TableStats{
			{Name: "users", Records: 3, Sweeps: 2, SweepVisited: 5, PageCreates: 1},
		},
	}

	require.NoError(t, sink.Publish(t.Context(), stats))

	var lines []map[string]any

	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))

		lines = append(lines, line)
	}

	require.Len(t, lines, 2)

	table := lines[0]
	assert.Equal(t, "table stats", table["msg"])
	assert.Equal(t, "users", table["table"])

	counters, ok := table["stats"].(map[string]any)
	require.True(t, ok, "stats group missing: %v", table)
	assert.InDelta(t, 5, counters["sweep_visited"], 0)
	assert.InDelta(t, 2, counters["sweeps"], 0)
	assert.InDelta(t, 1, counters["page_creates"], 0)

	total := lines[1]
	assert.Equal(t, "store stats", total["msg"])
	assert.Equal(t, "s1", total["store_id"])
	assert.Contains(t, total, "stats")
}
