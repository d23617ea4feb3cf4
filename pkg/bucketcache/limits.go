package bucketcache

import "time"

// Hardcoded implementation limits.
//
// These limits are generous; they exist to keep capacity arithmetic away from
// overflow and to bound memory for configurations nobody tests. Violations are
// reported as ErrInvalidOptions / ErrInvalidConfig.
const (
	// Maximum number of buckets per table.
	maxBucketCount = 1 << 26

	// Maximum records per page. A page is scanned linearly on every access.
	maxRecordsPerPage = 64

	// Maximum number of stripe locks per table.
	maxLockCount = 1 << 16

	// Maximum total records per table (buckets × records per page).
	maxTableCapacity = 1 << 30

	// Shortest sweep interval accepted from configuration.
	minSweepInterval = 10 * time.Millisecond

	// Maximum number of retries for a lock-free read that overlaps a write.
	// After that the read is reported as a miss.
	readMaxRetries = 10
)

// Defaults used when options leave a field zero.
const (
	DefaultBucketCount    = 1024
	DefaultRecordsPerPage = 8
	DefaultLockCount      = 64

	DefaultSweepInterval = 2 * time.Second
	DefaultSweepJitter   = time.Second

	// MaxChainLength is the number of consecutive hash slots a [Keyed]
	// adapter probes before giving up.
	MaxChainLength = 5
)
