// Package bucketcache provides an in-process, expiring cache built from
// fixed-capacity bucketed tables.
//
// bucketcache trades perfect correctness for speed. Reads never take a lock,
// tables never resize, and a rare hash collision may evict an entry or reject
// a write. It is meant for transient copies of data that lives somewhere
// else (database rows, remote lookups), not as a source of truth.
//
// # Basic Usage
//
//	store, err := bucketcache.NewStore(bucketcache.WithConfig(cfg))
//	if err != nil {
//	    // configuration errors fail here, never later
//	}
//
//	err = store.Start()
//	defer store.Stop(context.Background())
//
//	store.Put("users", 42, user, bucketcache.PutOptions{MaxAgeSec: 60})
//	v, ok := store.Get("users", 42, 0)
//
// Keys that are not uint64 go through a [Keyed] adapter:
//
//	users := bucketcache.Keys[string](store, "users")
//	users.Put("alice@example.com", user, bucketcache.PutOptions{})
//
// # Layout
//
// A [Table] is an array of buckets. Each bucket holds at most one page of
// records, created on first write. Capacity is buckets × records per page
// and is fixed when the table is created. When a page is full, the incoming
// write evicts the lowest-priority record if its own priority is at least as
// high; otherwise the write is rejected and Put reports inserted=false.
//
// # Expiry
//
// Get never removes anything. It reports expired records as misses and
// leaves them for the [Store] sweeper, which visits every table on a
// jittered interval and evicts what has aged out.
//
// # Disposal
//
// Values implementing [Disposer] (or [io.Closer]) are torn down exactly once
// when they leave the cache. Errors and panics from teardown are logged and
// never reach the caller.
package bucketcache
