package cachesink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
)

// FileSink writes each snapshot as indented JSON to Path. Readers never see
// a partially written file.
type FileSink struct {
	Path string
}

// Publish implements [bucketcache.Sink].
func (f FileSink) Publish(_ context.Context, stats bucketcache.StoreStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}

	data = append(data, '\n')

	if err := atomic.WriteFile(f.Path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing %s: %w", f.Path, err)
	}

	return nil
}

// ReadFile loads a snapshot written by [FileSink].
func ReadFile(path string) (bucketcache.StoreStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return bucketcache.StoreStats{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var stats bucketcache.StoreStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return bucketcache.StoreStats{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	return stats, nil
}
