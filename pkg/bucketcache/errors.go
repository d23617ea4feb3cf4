package bucketcache

import "errors"

// Sentinel errors returned by bucketcache operations.
//
// Cache misses and rejected writes are never errors; they are reported
// through return values. Callers should use [errors.Is]:
//
//	if errors.Is(err, bucketcache.ErrInvalidConfig) {
//	    // fix the config file, the store was not changed
//	}
var (
	// ErrInvalidConfig indicates a malformed configuration tree.
	//
	// Returned by [LoadConfig], [ParseConfig] and [Store.Configure]. The
	// store keeps its previous configuration.
	//
	// Recovery: fix the configuration and retry.
	ErrInvalidConfig = errors.New("bucketcache: invalid config")

	// ErrInvalidOptions indicates [TableOptions] outside the supported limits.
	//
	// This is a programming or configuration error.
	ErrInvalidOptions = errors.New("bucketcache: invalid table options")

	// ErrStarted indicates [Store.Start] was called on a running store.
	//
	// This is a programming error.
	ErrStarted = errors.New("bucketcache: already started")

	// ErrStopped indicates [Store.Start] was called after [Store.Stop].
	//
	// A stopped store cannot be restarted.
	//
	// Recovery: create a new store.
	ErrStopped = errors.New("bucketcache: stopped")
)
