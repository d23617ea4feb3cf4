package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and where it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, a)
		},
	}
}

func execPrintConfig(io *IO, a *app) error {
	formatted, err := bucketcache.FormatConfig(a.cfg)
	if err != nil {
		return err
	}

	io.Println(formatted)
	io.Println("")
	io.Println("# sources")

	if a.sources.File == "" && len(a.sources.Env) == 0 {
		io.Println("(defaults only)")

		return nil
	}

	if a.sources.File != "" {
		io.Println("config_file=" + a.sources.File)
	}

	for _, name := range a.sources.Env {
		io.Println("env=" + name)
	}

	return nil
}

// CheckConfigCmd returns the check-config command.
func CheckConfigCmd(a *app) *Command {
	return &Command{
		Flags:    flag.NewFlagSet("check-config", flag.ContinueOnError),
		Usage:    "check-config [file...]",
		Short:    "Validate configuration files",
		Variadic: true,
		Long: "Validate the given JSONC config files. Without arguments, validate the\n" +
			"resolved configuration and warn about unknown BUCKETCACHE_* variables.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			return execCheckConfig(io, a, args)
		},
	}
}

func execCheckConfig(io *IO, a *app, files []string) error {
	if len(files) == 0 {
		known := bucketcache.EnvVars()

		var unknown []string

		for name := range a.env {
			if strings.HasPrefix(name, bucketcache.EnvPrefix) && !slices.Contains(known, name) {
				unknown = append(unknown, name)
			}
		}

		slices.Sort(unknown)

		for _, name := range unknown {
			io.Warn("unknown variable "+name, "remove it or use one of "+strings.Join(known, ", "))
		}

		io.Printf("OK: resolved configuration is valid (%d table sections)\n", len(a.cfg.Tables))

		return nil
	}

	failed := 0

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err == nil {
			_, err = bucketcache.ParseConfig(data)
		}

		if err != nil {
			io.ErrPrintln("FAIL:", path+":", err)

			failed++

			continue
		}

		io.Println("OK:", path)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d config files invalid", failed, len(files))
	}

	return nil
}
