package bucketcache

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// TableOptions configures the fixed shape of a [Table].
//
// Zero fields take the package defaults. Capacity never changes after the
// table is created.
type TableOptions struct {
	// BucketCount is the number of top-level buckets. When zero and Capacity
	// is set, it is derived as ceil(Capacity / RecordsPerPage).
	BucketCount int `json:"bucket_count,omitempty"`

	// RecordsPerPage is the number of record slots in each bucket's page.
	RecordsPerPage int `json:"records_per_page,omitempty"`

	// LockCount is the number of stripe locks guarding writes. Clamped to
	// BucketCount.
	LockCount int `json:"lock_count,omitempty"`

	// DefaultMaxAgeSec applies to records put without their own max-age.
	// Zero means records never expire on age.
	DefaultMaxAgeSec int64 `json:"default_max_age_sec,omitempty"`

	// Capacity is a lower bound on BucketCount × RecordsPerPage.
	Capacity int `json:"capacity,omitempty"`
}

// Normalize fills defaults and validates o against the implementation limits.
//
// Possible errors: [ErrInvalidOptions] (joined, one per bad field).
func (o TableOptions) Normalize() (TableOptions, error) {
	var errs []error

	if o.BucketCount < 0 {
		errs = append(errs, fmt.Errorf("%w: bucket_count must be >= 0, got %d", ErrInvalidOptions, o.BucketCount))
	}

	if o.RecordsPerPage < 0 || o.RecordsPerPage > maxRecordsPerPage {
		errs = append(errs, fmt.Errorf("%w: records_per_page must be in [0, %d], got %d", ErrInvalidOptions, maxRecordsPerPage, o.RecordsPerPage))
	}

	if o.LockCount < 0 || o.LockCount > maxLockCount {
		errs = append(errs, fmt.Errorf("%w: lock_count must be in [0, %d], got %d", ErrInvalidOptions, maxLockCount, o.LockCount))
	}

	if o.DefaultMaxAgeSec < 0 {
		errs = append(errs, fmt.Errorf("%w: default_max_age_sec must be >= 0, got %d", ErrInvalidOptions, o.DefaultMaxAgeSec))
	}

	if o.Capacity < 0 || o.Capacity > maxTableCapacity {
		errs = append(errs, fmt.Errorf("%w: capacity must be in [0, %d], got %d", ErrInvalidOptions, maxTableCapacity, o.Capacity))
	}

	if len(errs) > 0 {
		return TableOptions{}, errors.Join(errs...)
	}

	if o.RecordsPerPage == 0 {
		o.RecordsPerPage = DefaultRecordsPerPage
	}

	if o.BucketCount == 0 {
		if o.Capacity > 0 {
			o.BucketCount = (o.Capacity + o.RecordsPerPage - 1) / o.RecordsPerPage
		} else {
			o.BucketCount = DefaultBucketCount
		}
	}

	if o.BucketCount > maxBucketCount {
		return TableOptions{}, fmt.Errorf("%w: bucket_count must be <= %d, got %d", ErrInvalidOptions, maxBucketCount, o.BucketCount)
	}

	capacity := o.BucketCount * o.RecordsPerPage
	if capacity > maxTableCapacity {
		return TableOptions{}, fmt.Errorf("%w: capacity %d exceeds limit %d", ErrInvalidOptions, capacity, maxTableCapacity)
	}

	if capacity < o.Capacity {
		return TableOptions{}, fmt.Errorf("%w: bucket_count × records_per_page = %d is below capacity %d", ErrInvalidOptions, capacity, o.Capacity)
	}

	if o.LockCount == 0 {
		o.LockCount = DefaultLockCount
	}

	o.LockCount = min(o.LockCount, o.BucketCount)

	return o, nil
}

// PutOptions carries the per-record metadata of a Put.
type PutOptions struct {
	// MaxAgeSec is the record's max age in seconds. Zero or negative uses
	// the table default.
	MaxAgeSec int64

	// Priority decides page collisions. Higher wins; ties go to the
	// incoming write.
	Priority int64

	// AbsoluteExpiration, when non-zero, expires the record at that instant
	// and takes precedence over age-based expiry.
	AbsoluteExpiration time.Time
}

// Clock is the time source used for expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TableOption customizes a [Table] beyond its [TableOptions].
type TableOption func(*Table)

// WithTableLogger sets the logger used for disposal failures.
func WithTableLogger(l *slog.Logger) TableOption {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithTableClock replaces the wall clock.
func WithTableClock(c Clock) TableOption {
	return func(t *Table) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithTableName sets the name reported in stats and logs.
func WithTableName(name string) TableOption {
	return func(t *Table) { t.name = name }
}
