package cachesink

import (
	"context"
	"errors"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
)

type multi []bucketcache.Sink

// Multi publishes to every sink in order. A failing sink does not stop the
// rest; all errors are joined. Nil sinks are skipped.
func Multi(sinks ...bucketcache.Sink) bucketcache.Sink {
	out := make(multi, 0, len(sinks))

	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}

	return out
}

// Publish implements [bucketcache.Sink].
func (m multi) Publish(ctx context.Context, stats bucketcache.StoreStats) error {
	var errs []error

	for _, s := range m {
		if err := s.Publish(ctx, stats); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
