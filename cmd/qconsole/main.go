package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ha1tch/qconsole/pkg/config"

	// Backend drivers (register via init())
	_ "github.com/ha1tch/qconsole/pkg/backend/duckdb"
	_ "github.com/ha1tch/qconsole/pkg/backend/postgres"
	_ "github.com/ha1tch/qconsole/pkg/backend/sqlite"
	_ "github.com/ha1tch/qconsole/pkg/backend/sqlserver"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// usageError marks command line mistakes, which exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// globalFlags are shared by every command.
type globalFlags struct {
	configFile string
	driver     string
	dsn        string
	dialect    string
	library    string
	logLevel   string
	logFormat  string
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		var uerr usageError
		if errors.As(err, &uerr) {
			return 2
		}
		return 1
	}
	return 0
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	return rootCommand(&globalFlags{}, stdin, stdout, stderr)
}

func rootCommand(g *globalFlags, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "qconsole",
		Short: "SQL query console server",
		Long: `qconsole serves a browser SQL console: paginated query execution, #view
macros resolved from a saved query library, optional total counts and
template rendered documents.

Configuration is read from the file given with --config, a .env file and
QCONSOLE_ prefixed environment variables; flags override all of them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configFile, "config", "c", "", "Configuration file path (YAML, JSON or TOML)")
	pf.StringVar(&g.driver, "driver", "", "Backend driver: sqlite, postgres, sqlserver, duckdb")
	pf.StringVar(&g.dsn, "dsn", "", "Backend data source name")
	pf.StringVar(&g.dialect, "dialect", "", "Windowing dialect override (suiteql, sqlite, postgres, sqlserver, duckdb)")
	pf.StringVarP(&g.library, "library", "l", "", "Saved query library folder")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text, json")

	root.AddCommand(serveCmd(g))
	root.AddCommand(queryCmd(g))
	root.AddCommand(shellCmd(g))
	root.AddCommand(versionCmd())

	return root
}

// loadConfig builds the configuration for a command: defaults, then the
// configuration file and environment, then any flags that were set.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.DefaultConfig()
	if err := config.Load(g.configFile, &cfg); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Backend.Driver = g.driver
	}
	if flags.Changed("dsn") {
		cfg.Backend.DSN = g.dsn
	}
	if flags.Changed("dialect") {
		cfg.Backend.Dialect = g.dialect
	}
	if flags.Changed("library") {
		cfg.Library.Kind = "fs"
		cfg.Library.Folder = g.library
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	return cfg, cfg.Validate()
}
