package bucketcache

import (
	"context"
	"log/slog"

	"github.com/calvinalkan/bucketcache/pkg/logger"
)

// Sink receives the aggregated stats a [Store] produces once per sweep cycle.
//
// Publish is called from the sweeper goroutine with a bounded context.
// Returned errors are logged; they never stop the sweeper.
type Sink interface {
	Publish(ctx context.Context, stats StoreStats) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, stats StoreStats) error

// Publish implements [Sink].
func (f SinkFunc) Publish(ctx context.Context, stats StoreStats) error {
	return f(ctx, stats)
}

// LogSink writes one log line per table and one for the store total, with
// the counters grouped under "stats".
type LogSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

// Publish implements [Sink].
func (l LogSink) Publish(ctx context.Context, stats StoreStats) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}

	for _, ts := range stats.Tables {
		log.LogAttrs(ctx, l.Level, "table stats",
			logger.Table(ts.Name),
			logger.Group("stats", statAttrs(ts)...),
		)
	}

	log.LogAttrs(ctx, l.Level, "store stats",
		logger.StoreID(stats.StoreID),
		slog.Int64("scheduler_faults", stats.SchedulerFaults),
		logger.Group("stats", statAttrs(stats.Total)...),
	)

	return nil
}

func statAttrs(ts TableStats) []slog.Attr {
	return []slog.Attr{
		slog.Int64("records", ts.Records),
		slog.Int64("pages", ts.Pages),
		slog.Float64("load_factor", ts.LoadFactor),
		slog.Int64("hits", ts.Hits),
		slog.Int64("misses", ts.Misses),
		slog.Int64("puts", ts.Puts),
		slog.Int64("inserts", ts.Inserts),
		slog.Int64("replaces", ts.Replaces),
		slog.Int64("collisions", ts.Collisions),
		slog.Int64("priority_blocked", ts.PriorityBlocked),
		slog.Int64("page_creates", ts.PageCreates),
		slog.Int64("sweeps", ts.Sweeps),
		slog.Int64("sweep_visited", ts.SweepVisited),
		slog.Int64("sweep_removed", ts.SweepRemoved),
		slog.Int64("remove_hits", ts.RemoveHits),
		slog.Int64("remove_misses", ts.RemoveMisses),
		slog.Int64("dispose_errors", ts.DisposeErrors),
	}
}
