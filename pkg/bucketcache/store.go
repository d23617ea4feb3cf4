package bucketcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/bucketcache/pkg/logger"
)

var discardLogger = slog.New(slog.DiscardHandler)

// publishTimeout bounds one Sink.Publish call per sweep cycle.
const publishTimeout = 5 * time.Second

// Store is a registry of named [Table]s with a background sweeper.
//
// Tables are created on first use with the options configured for their
// name, falling back to the default table options. Names are case
// insensitive. Tables are only removed by [Store.DropTable].
//
// A Store is usable without [Store.Start]; nothing expires on age until the
// sweeper (or [Store.SweepNow]) has visited a record.
type Store struct {
	id     uuid.UUID
	logger *slog.Logger
	clock  Clock
	sink   Sink

	cfg    atomic.Pointer[Config]
	tables sync.Map // lowercased name -> *Table

	faults atomic.Int64

	lifeMu   sync.Mutex
	state    lifecycle
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

type lifecycle int

const (
	stateIdle lifecycle = iota
	stateRunning
	stateStopped
)

// PutResult reports the outcome of [Store.Put].
type PutResult struct {
	// Inserted is false when a full page rejected the write on priority.
	Inserted bool

	// Record is the slot that now holds the value, nil if not inserted.
	Record *Record
}

// StoreOption configures [NewStore].
type StoreOption func(*storeSetup)

type storeSetup struct {
	cfg    Config
	logger *slog.Logger
	clock  Clock
	sink   Sink

	interval, jitter *Duration
}

// WithConfig sets the initial configuration. It is validated by NewStore.
func WithConfig(cfg Config) StoreOption {
	return func(s *storeSetup) { s.cfg = cfg }
}

// WithLogger sets the logger for the store and all of its tables.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *storeSetup) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSink sets where per-cycle stats are published when instrumentation is
// enabled.
func WithSink(sink Sink) StoreOption {
	return func(s *storeSetup) { s.sink = sink }
}

// WithSweepInterval overrides the configured sweep interval and jitter,
// regardless of option order.
func WithSweepInterval(base, jitter time.Duration) StoreOption {
	return func(s *storeSetup) {
		b, j := Duration(base), Duration(jitter)
		s.interval, s.jitter = &b, &j
	}
}

// WithClock replaces the wall clock used for expiry.
func WithClock(c Clock) StoreOption {
	return func(s *storeSetup) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewStore creates a stopped store.
//
// Possible errors: [ErrInvalidConfig].
func NewStore(opts ...StoreOption) (*Store, error) {
	setup := storeSetup{
		cfg:    DefaultConfig(),
		logger: discardLogger,
		clock:  systemClock{},
	}

	for _, o := range opts {
		o(&setup)
	}

	if setup.interval != nil {
		setup.cfg.SweepInterval = *setup.interval
		setup.cfg.SweepJitter = *setup.jitter
	}

	cfg, err := setup.cfg.Normalize()
	if err != nil {
		return nil, err
	}

	id := uuid.New()

	s := &Store{
		id:     id,
		logger: setup.logger.With(logger.Component("bucketcache"), logger.StoreID(id.String())),
		clock:  setup.clock,
		sink:   setup.sink,
	}
	s.cfg.Store(&cfg)

	return s, nil
}

// ID returns the store's instance identifier.
func (s *Store) ID() string { return s.id.String() }

// Config returns the active configuration.
func (s *Store) Config() Config { return s.cfg.Load().clone() }

// Configure replaces the configuration.
//
// The whole tree is validated before anything changes. Tables that already
// exist keep their capacity; their default max age is updated.
//
// Possible errors: [ErrInvalidConfig].
func (s *Store) Configure(cfg Config) error {
	normalized, err := cfg.Normalize()
	if err != nil {
		return err
	}

	s.cfg.Store(&normalized)

	s.tables.Range(func(k, v any) bool {
		name, _ := k.(string)
		tbl, _ := v.(*Table)
		tbl.setDefaultMaxAge(normalized.TableOptionsFor(name).DefaultMaxAgeSec)

		return true
	})

	s.logger.Info("configured",
		slog.Bool("parallel_sweep", normalized.ParallelSweep),
		slog.Bool("instrumentation", normalized.InstrumentationEnabled),
		slog.Int("table_sections", len(normalized.Tables)),
	)

	return nil
}

// GetOrCreateTable returns the table called name, creating it on first use.
// Concurrent callers always get the same instance.
func (s *Store) GetOrCreateTable(name string) *Table {
	key := strings.ToLower(name)

	if v, ok := s.tables.Load(key); ok {
		tbl, _ := v.(*Table)

		return tbl
	}

	opts := s.cfg.Load().TableOptionsFor(key)
	fresh := newTable(opts,
		WithTableName(key),
		WithTableLogger(s.logger),
		WithTableClock(s.clock),
	)

	v, loaded := s.tables.LoadOrStore(key, fresh)
	if !loaded {
		s.logger.Debug("table created",
			logger.Table(key),
			slog.Int("buckets", opts.BucketCount),
			slog.Int("records_per_page", opts.RecordsPerPage),
		)
	}

	tbl, _ := v.(*Table)

	return tbl
}

// Table returns the table called name if it exists.
func (s *Store) Table(name string) (*Table, bool) {
	v, ok := s.tables.Load(strings.ToLower(name))
	if !ok {
		return nil, false
	}

	tbl, _ := v.(*Table)

	return tbl, true
}

// Tables returns the names of all tables, sorted.
func (s *Store) Tables() []string {
	var names []string

	s.tables.Range(func(k, _ any) bool {
		name, _ := k.(string)
		names = append(names, name)

		return true
	})

	slices.Sort(names)

	return names
}

// Put stores value under key in the named table, creating the table if needed.
func (s *Store) Put(table string, key uint64, value any, opts PutOptions) PutResult {
	inserted, rec := s.GetOrCreateTable(table).Put(key, value, opts)

	return PutResult{Inserted: inserted, Record: rec}
}

// Get returns the value for key in the named table. It never creates tables.
func (s *Store) Get(table string, key uint64, maxAgeOverrideSec int64) (any, bool) {
	tbl, ok := s.Table(table)
	if !ok {
		return nil, false
	}

	return tbl.Lookup(key, maxAgeOverrideSec)
}

// Remove deletes key from the named table.
func (s *Store) Remove(table string, key uint64) bool {
	tbl, ok := s.Table(table)
	if !ok {
		return false
	}

	return tbl.Remove(key)
}

// DropTable unregisters the named table and disposes all of its values.
// Reports whether the table existed.
func (s *Store) DropTable(name string) bool {
	key := strings.ToLower(name)

	v, ok := s.tables.LoadAndDelete(key)
	if !ok {
		return false
	}

	tbl, _ := v.(*Table)
	removed := tbl.Clear()

	s.logger.Info("table dropped", logger.Table(key), slog.Int("removed", removed))

	return true
}

// Stats aggregates the current counters of all tables without sweeping.
func (s *Store) Stats() StoreStats {
	return s.collect(s.snapshotTables())
}

// SweepNow runs one sweep cycle synchronously: sweep every table, then
// publish the aggregated stats if instrumentation is enabled.
//
// Errors from individual tables or the sink are joined; the returned stats
// are valid either way.
func (s *Store) SweepNow(ctx context.Context) (StoreStats, error) {
	cfg := s.cfg.Load()
	tables := s.snapshotTables()

	var err error
	if cfg.ParallelSweep {
		err = s.sweepParallel(tables)
	} else {
		err = s.sweepSequential(ctx, tables)
	}

	stats := s.collect(tables)

	if cfg.InstrumentationEnabled && s.sink != nil {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		pubErr := s.sink.Publish(pubCtx, stats)

		cancel()

		if pubErr != nil {
			err = errors.Join(err, fmt.Errorf("publishing stats: %w", pubErr))
		}
	}

	return stats, err
}

func (s *Store) sweepSequential(ctx context.Context, tables []*Table) error {
	var errs []error

	for _, tbl := range tables {
		if ctx.Err() != nil {
			return errors.Join(append(errs, ctx.Err())...)
		}

		if err := s.sweepTable(tbl); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// sweepParallel sweeps tables concurrently, one goroutine per table. A
// failing table does not cancel the others.
func (s *Store) sweepParallel(tables []*Table) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, tbl := range tables {
		g.Go(func() error {
			if err := s.sweepTable(tbl); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait()

	return errors.Join(errs...)
}

func (s *Store) sweepTable(tbl *Table) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweeping table %s: panic: %v", tbl.name, r)
		}
	}()

	res := tbl.Sweep()

	s.logger.Debug("table swept",
		logger.Table(tbl.name),
		slog.Int("visited", res.Visited),
		slog.Int("removed", res.Removed),
	)

	return nil
}

func (s *Store) snapshotTables() []*Table {
	var tables []*Table

	s.tables.Range(func(_, v any) bool {
		tbl, _ := v.(*Table)
		tables = append(tables, tbl)

		return true
	})

	slices.SortFunc(tables, func(a, b *Table) int { return strings.Compare(a.name, b.name) })

	return tables
}

func (s *Store) collect(tables []*Table) StoreStats {
	stats := StoreStats{
		StoreID:         s.id.String(),
		CollectedAt:     s.clock.Now().UTC(),
		SchedulerFaults: s.faults.Load(),
		Tables:          make([]TableStats, 0, len(tables)),
	}

	for _, tbl := range tables {
		ts := tbl.Stats()
		stats.Tables = append(stats.Tables, ts)
		stats.Total.add(ts)
	}

	stats.Total.computeRatios()

	return stats
}
