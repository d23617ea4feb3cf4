// Package cachesink holds [bucketcache.Sink] implementations that ship the
// per-cycle stats of a store somewhere outside the process.
//
//   - [FileSink] replaces a JSON snapshot file atomically on every cycle.
//   - [RedisSink] writes one hash per table with a TTL, so stale stores
//     disappear on their own.
//   - [PrometheusSink] is a prometheus.Collector serving the last snapshot.
//   - [Multi] fans one snapshot out to several sinks.
//
// Usage:
//
//	prom := cachesink.NewPrometheusSink("myapp")
//	prometheus.MustRegister(prom)
//
//	store, err := bucketcache.NewStore(
//		bucketcache.WithSink(cachesink.Multi(prom, cachesink.FileSink{Path: "/run/myapp/cache.json"})),
//	)
package cachesink
