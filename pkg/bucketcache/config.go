package bucketcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tailscale/hujson"
)

// Config is the configuration tree of a [Store].
type Config struct {
	// ParallelSweep sweeps tables concurrently, one goroutine per table.
	ParallelSweep bool `json:"parallel_sweep"`

	// InstrumentationEnabled publishes stats to the store's Sink after every
	// sweep cycle.
	InstrumentationEnabled bool `json:"instrumentation_enabled"`

	// DisposeOnStop clears every table (disposing values) in Store.Stop.
	DisposeOnStop bool `json:"dispose_on_stop"`

	SweepInterval Duration `json:"sweep_interval"`
	SweepJitter   Duration `json:"sweep_jitter"`

	// DefaultTable applies to tables without their own section, and fills
	// the unset fields of the sections that exist.
	DefaultTable TableOptions `json:"default_table"`

	// Tables holds per-name sections, keyed by lowercased table name.
	Tables map[string]TableOptions `json:"tables,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("2s").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}

	*d = Duration(v)

	return nil
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		InstrumentationEnabled: true,
		DisposeOnStop:          true,
		SweepInterval:          Duration(DefaultSweepInterval),
		SweepJitter:            Duration(DefaultSweepJitter),
		DefaultTable: TableOptions{
			BucketCount:    DefaultBucketCount,
			RecordsPerPage: DefaultRecordsPerPage,
			LockCount:      DefaultLockCount,
		},
	}
}

// Normalize validates c and fills defaults. Table names are lowercased and
// every table section inherits unset fields from DefaultTable.
//
// Possible errors: [ErrInvalidConfig] (joined with the per-field errors).
func (c Config) Normalize() (Config, error) {
	var errs []error

	if c.SweepInterval == 0 {
		c.SweepInterval = Duration(DefaultSweepInterval)
	}

	if time.Duration(c.SweepInterval) < minSweepInterval {
		errs = append(errs, fmt.Errorf("sweep_interval must be >= %s, got %s", minSweepInterval, time.Duration(c.SweepInterval)))
	}

	if c.SweepJitter < 0 {
		errs = append(errs, fmt.Errorf("sweep_jitter must be >= 0, got %s", time.Duration(c.SweepJitter)))
	}

	def, err := c.DefaultTable.Normalize()
	if err != nil {
		errs = append(errs, fmt.Errorf("default_table: %w", err))
	}

	var tables map[string]TableOptions

	if len(c.Tables) > 0 {
		tables = make(map[string]TableOptions, len(c.Tables))

		for name, section := range c.Tables {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" {
				errs = append(errs, errors.New("tables: empty table name"))

				continue
			}

			if _, dup := tables[key]; dup {
				errs = append(errs, fmt.Errorf("tables: %q defined more than once (names are case insensitive)", key))

				continue
			}

			opts, err := inherit(section, c.DefaultTable).Normalize()
			if err != nil {
				errs = append(errs, fmt.Errorf("tables.%s: %w", key, err))

				continue
			}

			tables[key] = opts
		}
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	c.DefaultTable = def
	c.Tables = tables

	return c, nil
}

// TableOptionsFor returns the options for a (lowercased) table name.
func (c *Config) TableOptionsFor(name string) TableOptions {
	if opts, ok := c.Tables[name]; ok {
		return opts
	}

	return c.DefaultTable
}

func (c *Config) clone() Config {
	out := *c
	out.Tables = maps.Clone(c.Tables)

	return out
}

// inherit fills zero fields of section from def.
func inherit(section, def TableOptions) TableOptions {
	if section.BucketCount == 0 && section.Capacity == 0 {
		section.BucketCount = def.BucketCount
	}

	if section.RecordsPerPage == 0 {
		section.RecordsPerPage = def.RecordsPerPage
	}

	if section.LockCount == 0 {
		section.LockCount = def.LockCount
	}

	if section.DefaultMaxAgeSec == 0 {
		section.DefaultMaxAgeSec = def.DefaultMaxAgeSec
	}

	return section
}

// ParseConfig parses a JSONC configuration document over [DefaultConfig].
// Comments and trailing commas are allowed; unknown fields are not.
//
// Possible errors: [ErrInvalidConfig].
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	if err := decodeInto(&cfg, data); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg.Normalize()
}

func decodeInto(cfg *Config, data []byte) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decoding: %w", err)
	}

	return nil
}

// envOverrides are the BUCKETCACHE_* variables. Fields are pre-filled from the
// config so unset variables keep the file values.
type envOverrides struct {
	Config           string        `env:"CONFIG"`
	ParallelSweep    bool          `env:"PARALLEL_SWEEP"`
	Instrumentation  bool          `env:"INSTRUMENTATION_ENABLED"`
	DisposeOnStop    bool          `env:"DISPOSE_ON_STOP"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL"`
	SweepJitter      time.Duration `env:"SWEEP_JITTER"`
	BucketCount      int           `env:"DEFAULT_BUCKET_COUNT"`
	RecordsPerPage   int           `env:"DEFAULT_RECORDS_PER_PAGE"`
	LockCount        int           `env:"DEFAULT_LOCK_COUNT"`
	DefaultMaxAgeSec int64         `env:"DEFAULT_MAX_AGE_SEC"`
}

// EnvPrefix prefixes every environment variable read by [LoadConfig].
const EnvPrefix = "BUCKETCACHE_"

// EnvVars returns the names of all environment variables read by
// [LoadConfig], prefix included.
func EnvVars() []string {
	t := reflect.TypeFor[envOverrides]()
	names := make([]string, 0, t.NumField())

	for i := range t.NumField() {
		names = append(names, EnvPrefix+t.Field(i).Tag.Get("env"))
	}

	return names
}

// LoadConfigInput holds the inputs of [LoadConfig].
type LoadConfigInput struct {
	// Path is an explicit config file. When empty, BUCKETCACHE_CONFIG is
	// used; when both are empty, no file is read.
	Path string

	// Env is the process environment as a map. Nil means no overrides.
	Env map[string]string
}

// ConfigSources records where the resolved configuration came from.
type ConfigSources struct {
	File string   `json:"file,omitempty"`
	Env  []string `json:"env,omitempty"`
}

// LoadConfig resolves the configuration with precedence (lowest first):
// defaults, config file, BUCKETCACHE_* environment variables.
//
// Possible errors: [ErrInvalidConfig].
func LoadConfig(in LoadConfigInput) (Config, ConfigSources, error) {
	var sources ConfigSources

	cfg := DefaultConfig()

	path := in.Path
	if path == "" {
		path = in.Env[EnvPrefix+"CONFIG"]
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, sources, fmt.Errorf("%w %s: %w", ErrInvalidConfig, path, err)
		}

		if err := decodeInto(&cfg, data); err != nil {
			return Config{}, sources, fmt.Errorf("%w %s: %w", ErrInvalidConfig, path, err)
		}

		sources.File = path
	}

	ov := envOverrides{
		Config:           path,
		ParallelSweep:    cfg.ParallelSweep,
		Instrumentation:  cfg.InstrumentationEnabled,
		DisposeOnStop:    cfg.DisposeOnStop,
		SweepInterval:    time.Duration(cfg.SweepInterval),
		SweepJitter:      time.Duration(cfg.SweepJitter),
		BucketCount:      cfg.DefaultTable.BucketCount,
		RecordsPerPage:   cfg.DefaultTable.RecordsPerPage,
		LockCount:        cfg.DefaultTable.LockCount,
		DefaultMaxAgeSec: cfg.DefaultTable.DefaultMaxAgeSec,
	}

	environ := in.Env
	if environ == nil {
		environ = map[string]string{}
	}

	err := env.ParseWithOptions(&ov, env.Options{
		Environment: environ,
		Prefix:      EnvPrefix,
	})
	if err != nil {
		return Config{}, sources, fmt.Errorf("%w: environment: %w", ErrInvalidConfig, err)
	}

	cfg.ParallelSweep = ov.ParallelSweep
	cfg.InstrumentationEnabled = ov.Instrumentation
	cfg.DisposeOnStop = ov.DisposeOnStop
	cfg.SweepInterval = Duration(ov.SweepInterval)
	cfg.SweepJitter = Duration(ov.SweepJitter)
	cfg.DefaultTable.BucketCount = ov.BucketCount
	cfg.DefaultTable.RecordsPerPage = ov.RecordsPerPage
	cfg.DefaultTable.LockCount = ov.LockCount
	cfg.DefaultTable.DefaultMaxAgeSec = ov.DefaultMaxAgeSec

	for k := range in.Env {
		if strings.HasPrefix(k, EnvPrefix) && k != EnvPrefix+"CONFIG" {
			sources.Env = append(sources.Env, k)
		}
	}

	slices.Sort(sources.Env)

	normalized, err := cfg.Normalize()
	if err != nil {
		return Config{}, sources, err
	}

	return normalized, sources, nil
}

// FormatConfig renders cfg as indented JSON.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("formatting config: %w", err)
	}

	return string(data), nil
}
