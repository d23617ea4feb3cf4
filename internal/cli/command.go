package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one buckety subcommand: a store-backed tool (repl, bench) or a
// config inspector (print-config, check-config).
type Command struct {
	// Flags are the subcommand's own flags. Global flags (--config,
	// --log-level, ...) are parsed before the subcommand name.
	Flags *flag.FlagSet

	// Usage is the synopsis after "buckety", e.g. "check-config [file...]".
	// Its first word is the command name.
	Usage string

	// Short is the line shown in "buckety --help".
	Short string

	// Long is shown in "buckety <cmd> --help". Falls back to Short.
	Long string

	// Variadic commands accept positional arguments. All others reject
	// them as a usage error before Exec runs.
	Variadic bool

	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine formats the command for the global command list.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-22s %s", c.Usage, c.Short)
}

// PrintHelp writes the command's help to stdout.
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: buckety", c.Usage)
	o.Println()

	if c.Long != "" {
		o.Println(c.Long)
	} else {
		o.Println(c.Short)
	}

	if c.Flags != nil && c.Flags.HasFlags() {
		var buf strings.Builder

		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()

		o.Println()
		o.Println("Flags:")
		o.Printf("%s", buf.String())
	}

	o.Println()
	o.Println("Configuration comes from --config, BUCKETCACHE_* variables and --env-file;")
	o.Println("run 'buckety print-config' to see the resolved values.")
}

// Run parses flags, runs Exec and returns the exit code. Usage errors, from
// flag parsing or returned by Exec wrapping errUsage, are followed by the
// command help.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return 0
		}

		return c.usageError(o, err)
	}

	rest := c.Flags.Args()
	if !c.Variadic && len(rest) > 0 {
		return c.usageError(o, fmt.Errorf("%w: unexpected argument %q", errUsage, rest[0]))
	}

	if err := c.Exec(ctx, o, rest); err != nil {
		if errors.Is(err, errUsage) {
			return c.usageError(o, err)
		}

		o.ErrPrintln("error:", err)

		return 1
	}

	return o.Finish()
}

func (c *Command) usageError(o *IO, err error) int {
	o.ErrPrintln("error:", err)
	o.ErrPrintln()
	c.PrintHelp(o)

	return 1
}
