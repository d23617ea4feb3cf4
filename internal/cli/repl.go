package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
)

const historyFileName = ".buckety_history"

// ReplCmd returns the repl command.
func ReplCmd(a *app) *Command {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	addStoreFlags(fs)

	return &Command{
		Flags: fs,
		Usage: "repl [flags]",
		Short: "Interactive shell over a running store",
		Long: "Start a store with the resolved configuration and its background sweeper,\n" +
			"then read commands interactively. Type 'help' inside the shell.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			store, closeStore, err := openStore(ctx, a, fs)
			if err != nil {
				return err
			}

			lines := newLineReader(o.In(), a.env)

			r := &REPL{store: store, o: o, lines: lines}
			runErr := r.Run(ctx)

			lines.Close()

			return errors.Join(runErr, closeStore())
		},
	}
}

// lineReader is the input side of the REPL.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close()
}

// newLineReader uses liner with persistent history for the real stdin and a
// plain scanner for anything else.
func newLineReader(in io.Reader, env map[string]string) lineReader {
	if in == os.Stdin {
		return newLinerReader(historyPath(env))
	}

	if in == nil {
		in = strings.NewReader("")
	}

	return &scanReader{sc: bufio.NewScanner(in)}
}

func historyPath(env map[string]string) string {
	home := env["HOME"]
	if home == "" {
		var err error

		home, err = os.UserHomeDir()
		if err != nil {
			return ""
		}
	}

	return filepath.Join(home, historyFileName)
}

type linerReader struct {
	state   *liner.State
	history string
}

func newLinerReader(history string) *linerReader {
	l := &linerReader{state: liner.NewLiner(), history: history}
	l.state.SetCtrlCAborts(true)
	l.state.SetCompleter(completer)

	if history != "" {
		if f, err := os.Open(history); err == nil {
			_, _ = l.state.ReadHistory(f)
			_ = f.Close()
		}
	}

	return l
}

func (l *linerReader) Prompt(prompt string) (string, error) {
	line, err := l.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}

	return line, err
}

func (l *linerReader) AppendHistory(line string) { l.state.AppendHistory(line) }

func (l *linerReader) Close() {
	if l.history != "" {
		if f, err := os.Create(l.history); err == nil {
			_, _ = l.state.WriteHistory(f)
			_ = f.Close()
		}
	}

	_ = l.state.Close()
}

type scanReader struct {
	sc *bufio.Scanner
}

func (s *scanReader) Prompt(string) (string, error) {
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}

	if err := s.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (s *scanReader) AppendHistory(string) {}
func (s *scanReader) Close()               {}

var replCommands = []string{
	"put", "get", "del", "delete",
	"sput", "sget", "sdel",
	"scan", "ls", "tables", "drop",
	"stats", "sweep",
	"bulk", "seq", "bench",
	"clear", "cls",
	"help", "exit", "quit", "q",
}

// completer provides tab completion for commands.
func completer(line string) []string {
	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range replCommands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

// REPL is the interactive command loop.
type REPL struct {
	store *bucketcache.Store
	o     *IO
	lines lineReader
}

// Run reads commands until exit, EOF or ctx ends.
func (r *REPL) Run(ctx context.Context) error {
	cfg := r.store.Config()

	r.o.Printf("buckety - store %s (sweep_interval=%s, parallel_sweep=%v)\n",
		r.store.ID(), time.Duration(cfg.SweepInterval), cfg.ParallelSweep)
	r.o.Println("Type 'help' for available commands.")
	r.o.Println()

	for ctx.Err() == nil {
		line, err := r.lines.Prompt("buckety> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.o.Println("Bye!")

				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r.lines.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			r.o.Println("Bye!")

			return nil
		case "help", "?":
			r.printHelp()
		case "put":
			r.cmdPut(args)
		case "get":
			r.cmdGet(args)
		case "del", "delete":
			r.cmdDelete(args)
		case "sput":
			r.cmdStringPut(args)
		case "sget":
			r.cmdStringGet(args)
		case "sdel":
			r.cmdStringDelete(args)
		case "scan", "ls":
			r.cmdScan(args)
		case "tables":
			r.cmdTables()
		case "drop":
			r.cmdDrop(args)
		case "stats":
			r.cmdStats(args)
		case "sweep":
			r.cmdSweep(ctx)
		case "clear", "cls":
			r.o.Printf("\033[H\033[2J")
		case "bulk":
			r.cmdBulk(args)
		case "seq":
			r.cmdSeq(args)
		case "bench":
			r.cmdBench(args)
		default:
			r.o.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	return ctx.Err()
}

func (r *REPL) printHelp() {
	r.o.Println("Commands:")
	r.o.Println("  put <table> <key> <value> [max_age] [priority]   Store a value under a numeric key")
	r.o.Println("  get <table> <key> [max_age]                       Read a value (max_age overrides)")
	r.o.Println("  del <table> <key>                                 Remove a key")
	r.o.Println("  sput <table> <key> <value> [max_age] [priority]  Store under a string key")
	r.o.Println("  sget <table> <key>                                Read a string key")
	r.o.Println("  sdel <table> <key>                                Remove a string key")
	r.o.Println("  scan <table> [limit]                              List live records")
	r.o.Println("  tables                                            List tables")
	r.o.Println("  drop <table>                                      Drop a table, disposing its values")
	r.o.Println("  stats [table]                                     Show counters as JSON")
	r.o.Println("  sweep                                             Run one sweep cycle now")
	r.o.Println("  bulk <table> <count>                              Insert N random keys")
	r.o.Println("  seq <table> <count> [start]                       Insert N sequential keys")
	r.o.Println("  bench <table> <count>                             Benchmark put+get")
	r.o.Println("  help                                              Show this help")
	r.o.Println("  exit / quit / q                                   Exit")
	r.o.Println()
	r.o.Println("Keys: unsigned integers, or any text for the s* commands.")
	r.o.Println("max_age is in seconds; 0 uses the table default.")
}

func parseKey(s string) (uint64, error) {
	key, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("key must be an unsigned integer: %q", s)
	}

	return key, nil
}

// parsePutOptions reads the optional [max_age] [priority] tail.
func parsePutOptions(args []string) (bucketcache.PutOptions, error) {
	var opts bucketcache.PutOptions

	if len(args) >= 1 {
		v, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || v < 0 {
			return opts, fmt.Errorf("max_age must be a non-negative integer: %q", args[0])
		}

		opts.MaxAgeSec = v
	}

	if len(args) >= 2 {
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return opts, fmt.Errorf("priority must be an integer: %q", args[1])
		}

		opts.Priority = v
	}

	return opts, nil
}

func (r *REPL) printPut(table, key string, res bucketcache.PutResult) {
	if !res.Inserted {
		r.o.Printf("BLOCKED: %s/%s (page full of higher priority records)\n", table, key)

		return
	}

	r.o.Printf("OK: put %s/%s\n", table, key)
}

func (r *REPL) cmdPut(args []string) {
	if len(args) < 3 {
		r.o.Println("Usage: put <table> <key> <value> [max_age] [priority]")

		return
	}

	key, err := parseKey(args[1])
	if err != nil {
		r.o.Printf("Error: %v\n", err)

		return
	}

	opts, err := parsePutOptions(args[3:])
	if err != nil {
		r.o.Printf("Error: %v\n", err)

		return
	}

	r.printPut(args[0], args[1], r.store.Put(args[0], key, args[2], opts))
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 2 {
		r.o.Println("Usage: get <table> <key> [max_age]")

		return
	}

	key, err := parseKey(args[1])
	if err != nil {
		r.o.Printf("Error: %v\n", err)

		return
	}

	var override int64

	if len(args) >= 3 {
		override, err = strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			r.o.Printf("Error: max_age must be an integer: %q\n", args[2])

			return
		}
	}

	tbl, ok := r.store.Table(args[0])
	if !ok {
		r.o.Println("(not found)")

		return
	}

	rec := tbl.Get(key, override)
	if rec == nil {
		r.o.Println("(not found)")

		return
	}

	r.printRecord(rec)
}

func (r *REPL) printRecord(rec *bucketcache.Record) {
	r.o.Printf("Value:    %v\n", rec.Value())
	r.o.Printf("Key:      %d\n", rec.Key())
	r.o.Printf("Age:      %ds\n", rec.AgeSec())
	r.o.Printf("MaxAge:   %ds\n", rec.MaxAgeSec())
	r.o.Printf("Priority: %d\n", rec.Priority())
	r.o.Printf("Hits:     %d\n", rec.HitCount())
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) < 2 {
		r.o.Println("Usage: del <table> <key>")

		return
	}

	key, err := parseKey(args[1])
	if err != nil {
		r.o.Printf("Error: %v\n", err)

		return
	}

	if r.store.Remove(args[0], key) {
		r.o.Printf("OK: deleted %s/%s\n", args[0], args[1])
	} else {
		r.o.Printf("OK: %s/%s did not exist\n", args[0], args[1])
	}
}

func (r *REPL) cmdStringPut(args []string) {
	if len(args) < 3 {
		r.o.Println("Usage: sput <table> <key> <value> [max_age] [priority]")

		return
	}

	opts, err := parsePutOptions(args[3:])
	if err != nil {
		r.o.Printf("Error: %v\n", err)

		return
	}

	ok, rec := bucketcache.Keys[string](r.store, args[0]).Put(args[1], args[2], opts)
	r.printPut(args[0], args[1], bucketcache.PutResult{Inserted: ok, Record: rec})
}

func (r *REPL) cmdStringGet(args []string) {
	if len(args) < 2 {
		r.o.Println("Usage: sget <table> <key>")

		return
	}

	rec := bucketcache.Keys[string](r.store, args[0]).Get(args[1])
	if rec == nil {
		r.o.Println("(not found)")

		return
	}

	r.printRecord(rec)
}

func (r *REPL) cmdStringDelete(args []string) {
	if len(args) < 2 {
		r.o.Println("Usage: sdel <table> <key>")

		return
	}

	if bucketcache.Keys[string](r.store, args[0]).Remove(args[1]) {
		r.o.Printf("OK: deleted %s/%s\n", args[0], args[1])
	} else {
		r.o.Printf("OK: %s/%s did not exist\n", args[0], args[1])
	}
}

func (r *REPL) cmdScan(args []string) {
	if len(args) < 1 {
		r.o.Println("Usage: scan <table> [limit]")

		return
	}

	limit := 20

	if len(args) >= 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			r.o.Println("Error: limit must be a positive integer")

			return
		}

		limit = n
	}

	tbl, ok := r.store.Table(args[0])
	if !ok {
		r.o.Println("(no entries)")

		return
	}

	count := 0

	tbl.Range(func(rec *bucketcache.Record) bool {
		if meta := rec.Meta(); meta != nil {
			r.o.Printf("  %-20v %-20v age=%ds prio=%d hits=%d\n", meta, rec.Value(), rec.AgeSec(), rec.Priority(), rec.HitCount())
		} else {
			r.o.Printf("  %-20d %-20v age=%ds prio=%d hits=%d\n", rec.Key(), rec.Value(), rec.AgeSec(), rec.Priority(), rec.HitCount())
		}

		count++

		return count < limit
	})

	if count == 0 {
		r.o.Println("(no entries)")

		return
	}

	r.o.Printf("(%d shown)\n", count)
}

func (r *REPL) cmdTables() {
	names := r.store.Tables()
	if len(names) == 0 {
		r.o.Println("(no tables)")

		return
	}

	for _, name := range names {
		tbl, ok := r.store.Table(name)
		if !ok {
			continue
		}

		st := tbl.Stats()
		r.o.Printf("  %-20s buckets=%d capacity=%d records=%d\n", name, st.Buckets, st.Capacity, st.Records)
	}
}

func (r *REPL) cmdDrop(args []string) {
	if len(args) < 1 {
		r.o.Println("Usage: drop <table>")

		return
	}

	if r.store.DropTable(args[0]) {
		r.o.Printf("OK: dropped %s\n", args[0])
	} else {
		r.o.Printf("OK: %s did not exist\n", args[0])
	}
}

func (r *REPL) cmdStats(args []string) {
	var v any

	if len(args) >= 1 {
		tbl, ok := r.store.Table(args[0])
		if !ok {
			r.o.Println("(not found)")

			return
		}

		v = tbl.Stats()
	} else {
		v = r.store.Stats()
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.o.Printf("Error: %v\n", err)

		return
	}

	r.o.Println(string(data))
}

func (r *REPL) cmdSweep(ctx context.Context) {
	stats, err := r.store.SweepNow(ctx)
	if err != nil {
		r.o.Printf("Warning: %v\n", err)
	}

	r.o.Printf("OK: swept %d tables, %d records live, %d removed in total\n",
		len(stats.Tables), stats.Total.Records, stats.Total.SweepRemoved)
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("count must be a positive integer")
	}

	return n, nil
}

func (r *REPL) cmdBulk(args []string) {
	if len(args) < 2 {
		r.o.Println("Usage: bulk <table> <count>")

		return
	}

	count, err := parseCount(args[1])
	if err != nil {
		r.o.Printf("Error: %v\n", err)

		return
	}

	tbl := r.store.GetOrCreateTable(args[0])
	start := time.Now()
	inserted := 0

	for range count {
		key := rand.Uint64()
		if ok, _ := tbl.Put(key, strconv.FormatUint(key, 16), bucketcache.PutOptions{}); ok {
			inserted++
		}
	}

	elapsed := time.Since(start)
	r.o.Printf("OK: inserted %d/%d entries in %v (%.0f ops/sec)\n",
		inserted, count, elapsed.Round(time.Millisecond), float64(count)/elapsed.Seconds())
}

func (r *REPL) cmdSeq(args []string) {
	if len(args) < 2 {
		r.o.Println("Usage: seq <table> <count> [start]")

		return
	}

	count, err := parseCount(args[1])
	if err != nil {
		r.o.Printf("Error: %v\n", err)

		return
	}

	startKey := uint64(1)

	if len(args) >= 3 {
		startKey, err = strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			r.o.Printf("Error parsing start: %v\n", err)

			return
		}
	}

	tbl := r.store.GetOrCreateTable(args[0])
	start := time.Now()
	inserted := 0

	for i := range uint64(count) {
		key := startKey + i
		if ok, _ := tbl.Put(key, strconv.FormatUint(key, 10), bucketcache.PutOptions{}); ok {
			inserted++
		}
	}

	elapsed := time.Since(start)
	r.o.Printf("OK: inserted %d/%d sequential entries in %v (%.0f ops/sec)\n",
		inserted, count, elapsed.Round(time.Millisecond), float64(count)/elapsed.Seconds())
}

func (r *REPL) cmdBench(args []string) {
	if len(args) < 2 {
		r.o.Println("Usage: bench <table> <count>")

		return
	}

	count, err := parseCount(args[1])
	if err != nil {
		r.o.Printf("Error: %v\n", err)

		return
	}

	keys := make([]uint64, count)
	for i := range keys {
		keys[i] = rand.Uint64()
	}

	tbl := r.store.GetOrCreateTable(args[0])

	r.o.Printf("Benchmarking %d operations...\n", count)

	putStart := time.Now()

	for _, key := range keys {
		tbl.Put(key, key, bucketcache.PutOptions{})
	}

	putElapsed := time.Since(putStart)

	getStart := time.Now()
	hits := 0

	for _, key := range keys {
		if tbl.Get(key, 0) != nil {
			hits++
		}
	}

	getElapsed := time.Since(getStart)

	r.o.Printf("\nResults:\n")
	r.o.Printf("  Puts:  %d ops in %v (%.0f ops/sec)\n",
		count, putElapsed.Round(time.Millisecond), float64(count)/putElapsed.Seconds())
	r.o.Printf("  Gets:  %d ops in %v (%.0f ops/sec), %d hits\n",
		count, getElapsed.Round(time.Millisecond), float64(count)/getElapsed.Seconds(), hits)
}
