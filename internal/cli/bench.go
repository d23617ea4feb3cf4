package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
)

// BenchCmd returns the bench command.
func BenchCmd(a *app) *Command {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.String("table", "bench", "Table to load")
	fs.Int("workers", runtime.GOMAXPROCS(0), "Concurrent workers")
	fs.Int("ops", 100_000, "Operations per worker")
	fs.Int("keys", 1<<16, "Key space size")
	fs.Float64("read-ratio", 0.8, "Fraction of operations that are gets (0..1)")
	fs.Float64("remove-ratio", 0.05, "Fraction of operations that are removes (0..1)")
	fs.Int64("max-age", 0, "Max age in seconds for written records (0 = table default)")
	fs.Int64("priorities", 1, "Spread puts over this many priority levels")
	fs.Bool("verify-dispose", false, "Fail unless every stored value is disposed exactly once")
	addStoreFlags(fs)

	return &Command{
		Flags: fs,
		Usage: "bench [flags]",
		Short: "Run a concurrent load test",
		Long: "Run a mixed get/put/remove workload against a store with its sweeper\n" +
			"running, then print throughput and the aggregated table stats.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execBench(ctx, o, a, fs)
		},
	}
}

type benchParams struct {
	table       string
	workers     int
	ops         int
	keys        int
	readRatio   float64
	removeRatio float64
	maxAge      int64
	priorities  int64
	verify      bool
}

func readBenchParams(fs *flag.FlagSet) (benchParams, error) {
	var p benchParams

	p.table, _ = fs.GetString("table")
	p.workers, _ = fs.GetInt("workers")
	p.ops, _ = fs.GetInt("ops")
	p.keys, _ = fs.GetInt("keys")
	p.readRatio, _ = fs.GetFloat64("read-ratio")
	p.removeRatio, _ = fs.GetFloat64("remove-ratio")
	p.maxAge, _ = fs.GetInt64("max-age")
	p.priorities, _ = fs.GetInt64("priorities")
	p.verify, _ = fs.GetBool("verify-dispose")

	var errs []error

	if p.table == "" {
		errs = append(errs, errors.New("--table cannot be empty"))
	}

	if p.workers < 1 || p.ops < 1 || p.keys < 1 || p.priorities < 1 {
		errs = append(errs, errors.New("--workers, --ops, --keys and --priorities must be positive"))
	}

	if p.readRatio < 0 || p.removeRatio < 0 || p.readRatio+p.removeRatio > 1 {
		errs = append(errs, errors.New("--read-ratio and --remove-ratio must be >= 0 and sum to at most 1"))
	}

	if p.maxAge < 0 {
		errs = append(errs, errors.New("--max-age must be >= 0"))
	}

	if len(errs) > 0 {
		return p, fmt.Errorf("%w: %w", errUsage, errors.Join(errs...))
	}

	return p, nil
}

// benchValue counts its own disposals.
type benchValue struct {
	disposed *atomic.Int64
	once     atomic.Bool
	twice    *atomic.Int64
}

func (v *benchValue) Dispose() error {
	if !v.once.CompareAndSwap(false, true) {
		v.twice.Add(1)
	}

	v.disposed.Add(1)

	return nil
}

type benchCounts struct {
	gets, hits, puts, stored, removes atomic.Int64
}

func execBench(ctx context.Context, o *IO, a *app, fs *flag.FlagSet) error {
	p, err := readBenchParams(fs)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, a, fs)
	if err != nil {
		return err
	}

	var (
		counts   benchCounts
		disposed atomic.Int64
		twice    atomic.Int64
	)

	tbl := store.GetOrCreateTable(p.table)

	o.Printf("Benchmarking %d workers x %d ops on %s (keys=%d, capacity=%d)...\n",
		p.workers, p.ops, tbl.Name(), p.keys, tbl.Capacity())

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()

	for w := range p.workers {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), uint64(start.UnixNano())))

			for i := range p.ops {
				if i%1024 == 0 && gctx.Err() != nil {
					return gctx.Err()
				}

				key := rng.Uint64N(uint64(p.keys))

				switch x := rng.Float64(); {
				case x < p.readRatio:
					counts.gets.Add(1)

					if tbl.Get(key, 0) != nil {
						counts.hits.Add(1)
					}
				case x < p.readRatio+p.removeRatio:
					counts.removes.Add(1)
					tbl.Remove(key)
				default:
					counts.puts.Add(1)

					v := &benchValue{disposed: &disposed, twice: &twice}
					opts := bucketcache.PutOptions{MaxAgeSec: p.maxAge, Priority: rng.Int64N(p.priorities)}

					if ok, _ := tbl.Put(key, v, opts); ok {
						counts.stored.Add(1)
					}
				}
			}

			return nil
		})
	}

	runErr := g.Wait()
	elapsed := time.Since(start)

	total := counts.gets.Load() + counts.puts.Load() + counts.removes.Load()

	o.Printf("\nResults:\n")
	o.Printf("  Ops:      %d in %v (%.0f ops/sec)\n", total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
	o.Printf("  Gets:     %d (%d hits, %.1f%%)\n", counts.gets.Load(), counts.hits.Load(), percent(counts.hits.Load(), counts.gets.Load()))
	o.Printf("  Puts:     %d (%d stored)\n", counts.puts.Load(), counts.stored.Load())
	o.Printf("  Removes:  %d\n", counts.removes.Load())

	stats, sweepErr := store.SweepNow(ctx)
	ts := tbl.Stats()

	o.Printf("  Records:  %d / %d (load %.2f)\n", stats.Total.Records, stats.Total.Capacity, stats.Total.LoadFactor)
	o.Printf("  Table:    inserts=%d replaces=%d collisions=%d blocked=%d swept=%d\n",
		ts.Inserts, ts.Replaces, ts.Collisions, ts.PriorityBlocked, ts.SweepRemoved)

	if p.verify {
		store.DropTable(p.table)

		o.Printf("  Disposed: %d of %d stored\n", disposed.Load(), counts.stored.Load())

		if twice.Load() > 0 {
			runErr = errors.Join(runErr, fmt.Errorf("dispose check failed: %d values disposed more than once", twice.Load()))
		} else if disposed.Load() != counts.stored.Load() {
			runErr = errors.Join(runErr, fmt.Errorf("dispose check failed: %d disposed, %d stored", disposed.Load(), counts.stored.Load()))
		}
	}

	if sweepErr != nil {
		o.Warn("final sweep: "+sweepErr.Error(), "check the sink flags")
	}

	return errors.Join(runErr, closeStore())
}

func percent(n, d int64) float64 {
	if d == 0 {
		return 0
	}

	return 100 * float64(n) / float64(d)
}
