package cachesink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
)

// DefaultRedisTTL is used when RedisSink.TTL is zero.
const DefaultRedisTTL = time.Minute

// ErrRedisNotReady is returned by [ConnectRedis] when the server does not
// answer PING.
var ErrRedisNotReady = errors.New("redis is not ready")

// RedisSink writes the snapshot to Redis, one hash per table plus one for
// the store total:
//
//	<prefix>:<store id>:total
//	<prefix>:<store id>:table:<name>
//
// Every key gets TTL, refreshed on each publish.
type RedisSink struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisSink creates a sink over client. An empty prefix becomes
// "bucketcache"; a zero ttl becomes [DefaultRedisTTL].
func NewRedisSink(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSink {
	if prefix == "" {
		prefix = "bucketcache"
	}

	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}

	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

// ConnectRedis parses url, connects and pings.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, errors.Join(ErrRedisNotReady, err)
	}

	return client, nil
}

// TotalKey returns the key holding the store total.
func (r *RedisSink) TotalKey(storeID string) string {
	return r.prefix + ":" + storeID + ":total"
}

// TableKey returns the key holding one table's stats.
func (r *RedisSink) TableKey(storeID, table string) string {
	return r.prefix + ":" + storeID + ":table:" + table
}

// Publish implements [bucketcache.Sink]. All writes go in one pipeline.
func (r *RedisSink) Publish(ctx context.Context, stats bucketcache.StoreStats) error {
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		total := r.TotalKey(stats.StoreID)
		fields := hashFields(stats.Total)
		fields = append(fields,
			"scheduler_faults", strconv.FormatInt(stats.SchedulerFaults, 10),
			"collected_at", stats.CollectedAt.Format(time.RFC3339Nano),
		)

		p.HSet(ctx, total, fields...)
		p.Expire(ctx, total, r.ttl)

		for _, ts := range stats.Tables {
			key := r.TableKey(stats.StoreID, ts.Name)
			p.HSet(ctx, key, hashFields(ts)...)
			p.Expire(ctx, key, r.ttl)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	return nil
}

func hashFields(ts bucketcache.TableStats) []any {
	return []any{
		"buckets", ts.Buckets,
		"capacity", ts.Capacity,
		"records", ts.Records,
		"pages", ts.Pages,
		"load_factor", strconv.FormatFloat(ts.LoadFactor, 'f', -1, 64),
		"hits", ts.Hits,
		"misses", ts.Misses,
		"puts", ts.Puts,
		"inserts", ts.Inserts,
		"replaces", ts.Replaces,
		"collisions", ts.Collisions,
		"priority_blocked", ts.PriorityBlocked,
		"page_creates", ts.PageCreates,
		"remove_hits", ts.RemoveHits,
		"remove_misses", ts.RemoveMisses,
		"sweeps", ts.Sweeps,
		"sweep_visited", ts.SweepVisited,
		"sweep_removed", ts.SweepRemoved,
		"dispose_errors", ts.DisposeErrors,
	}
}
