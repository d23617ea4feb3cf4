package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"strings"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
	"github.com/calvinalkan/bucketcache/pkg/logger"
)

// app is what every command gets: the resolved configuration, the logger,
// and the process environment.
type app struct {
	cfg     bucketcache.Config
	sources bucketcache.ConfigSources
	logger  *slog.Logger
	env     map[string]string
}

func allCommands(a *app) []*Command {
	return []*Command{
		ReplCmd(a),
		BenchCmd(a),
		CheckConfigCmd(a),
		PrintConfigCmd(a),
	}
}

func globalFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("buckety", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(&strings.Builder{})
	fs.StringP("config", "c", "", "Use specified config file (JSONC)")
	fs.String("env-file", "", "Load BUCKETCACHE_* variables from a dotenv file")
	fs.String("log-level", "info", "Log level (debug|info|warn|error)")
	fs.String("log-format", "text", "Log format (text|json)")
	fs.BoolP("help", "h", false, "Show help")

	return fs
}

// Run is the main entry point. Returns exit code.
//
// sigCh, when non-nil, cancels the running command on the first signal.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	fs := globalFlagSet()

	if len(args) > 0 {
		args = args[1:]
	}

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, fs)

		return 1
	}

	help, _ := fs.GetBool("help")
	rest := fs.Args()

	if help || len(rest) == 0 {
		printUsage(out, fs)

		return 0
	}

	a, err := setup(fs, errOut, env)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	name := rest[0]

	var cmd *Command

	for _, c := range allCommands(a) {
		if c.Name() == name {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error: unknown command:", name)
		printUsage(errOut, fs)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				a.logger.Info("signal received, shutting down")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, NewIO(in, out, errOut), rest[1:])
}

// setup resolves env file, logger and configuration.
func setup(fs *flag.FlagSet, errOut io.Writer, env map[string]string) (*app, error) {
	environ := maps.Clone(env)
	if environ == nil {
		environ = map[string]string{}
	}

	if path, _ := fs.GetString("env-file"); path != "" {
		fromFile, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("reading env file: %w", err)
		}

		// The real environment wins over the file.
		for k, v := range fromFile {
			if _, set := environ[k]; !set {
				environ[k] = v
			}
		}
	}

	levelStr, _ := fs.GetString("log-level")

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}

	formatStr, _ := fs.GetString("log-format")

	format, err := logger.ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	log := logger.New(
		logger.WithLevel(level),
		logger.WithFormat(format),
		logger.WithOutput(errOut),
		logger.WithAttr(logger.Component("buckety")),
	)

	path, _ := fs.GetString("config")

	cfg, sources, err := bucketcache.LoadConfig(bucketcache.LoadConfigInput{Path: path, Env: environ})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, sources: sources, logger: log, env: environ}, nil
}

var errUsage = errors.New("invalid arguments")

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fprintln(w, `buckety - bucketed expiring cache playground

Usage: buckety [global flags] <command> [args]

Global flags:`)

	var buf strings.Builder
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(&strings.Builder{})
	_, _ = fmt.Fprint(w, buf.String())

	fprintln(w)
	fprintln(w, "Commands:")

	for _, c := range allCommands(&app{}) {
		fprintln(w, c.HelpLine())
	}
}
