package cli_test

import (
	"testing"

	"github.com/calvinalkan/bucketcache/internal/cli"
)

func Test_Print_Config_Defaults_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, `"sweep_interval": "2s"`)
	cli.AssertContains(t, stdout, `"bucket_count": 1024`)
	cli.AssertContains(t, stdout, "(defaults only)")
}

func Test_Print_Config_From_Config_File_With_Comments_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	path := c.WriteFile("cache.jsonc", `{
		// tables
		"tables": {
			"Sessions": { "capacity": 64, "default_max_age_sec": 30 },
		},
	}`)

	stdout := c.MustRun("--config", path, "print-config")

	cli.AssertContains(t, stdout, `"sessions": {`)
	cli.AssertContains(t, stdout, `"default_max_age_sec": 30`)
	cli.AssertContains(t, stdout, "config_file="+path)
}

func Test_Print_Config_Env_Overrides_File_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	path := c.WriteFile("cache.jsonc", `{"sweep_interval": "5s"}`)
	c.Env["BUCKETCACHE_CONFIG"] = path
	c.Env["BUCKETCACHE_SWEEP_INTERVAL"] = "750ms"

	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, `"sweep_interval": "750ms"`)
	cli.AssertContains(t, stdout, "config_file="+path)
	cli.AssertContains(t, stdout, "env=BUCKETCACHE_SWEEP_INTERVAL")
}

func Test_Print_Config_Reads_Env_File_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	envFile := c.WriteFile(".env", "BUCKETCACHE_PARALLEL_SWEEP=true\nBUCKETCACHE_DEFAULT_LOCK_COUNT=8\n")
	c.Env["BUCKETCACHE_DEFAULT_LOCK_COUNT"] = "16"

	stdout := c.MustRun("--env-file", envFile, "print-config")

	cli.AssertContains(t, stdout, `"parallel_sweep": true`)
	cli.AssertContains(t, stdout, `"lock_count": 16`)
}

func Test_Env_File_Missing_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--env-file", c.Dir+"/nope.env", "print-config")

	cli.AssertContains(t, stderr, "reading env file")
}

func Test_Check_Config_Files_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	good := c.WriteFile("good.jsonc", `{"parallel_sweep": true}`)
	bad := c.WriteFile("bad.jsonc", `{"tables": {"x": {"records_per_page": 500}}}`)

	stdout, stderr, code := c.Run("check-config", good, bad)

	if got, want := code, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stdout, "OK: "+good)
	cli.AssertContains(t, stderr, "FAIL: "+bad)
	cli.AssertContains(t, stderr, "records_per_page")
	cli.AssertContains(t, stderr, "1 of 2 config files invalid")
}

func Test_Check_Config_Warns_On_Unknown_Env_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.Env["BUCKETCACHE_SWEEP_INTERVALL"] = "1s"

	stdout, stderr, code := c.Run("check-config")

	if got, want := code, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stdout, "OK: resolved configuration is valid")
	cli.AssertContains(t, stderr, "warning: unknown variable BUCKETCACHE_SWEEP_INTERVALL")
}

func Test_Check_Config_Valid_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("check-config")

	cli.AssertContains(t, stdout, "OK: resolved configuration is valid (0 table sections)")
}
