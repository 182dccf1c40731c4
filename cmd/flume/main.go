package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/sambeau/flume/config"
	"github.com/sambeau/flume/pkg/flume/engine"
	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/fetch"
	"github.com/sambeau/flume/pkg/flume/flume"
	"github.com/sambeau/flume/pkg/flume/printer"
	"github.com/sambeau/flume/pkg/flume/repl"
	"github.com/sambeau/flume/pkg/flume/source"
	"github.com/sambeau/flume/pkg/flume/table"
)

// Version information, set at build time via -ldflags
var (
	Version = "dev"     // -X main.Version=$(git describe --tags --always)
	Commit  = "unknown" // -X main.Commit=$(git rev-parse --short HEAD)
)

// usageError marks bad invocations, which exit with status 2.
type usageError struct{ error }

// errReported is returned when the failure has already been printed.
var errReported = errors.New("failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	cancel()
	os.Exit(exitCode(err, os.Stderr))
}

// exitCode prints err, unless already reported, and maps it to a status.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var usage usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "error: %v\n", err)
		fmt.Fprintln(stderr, "Run 'flume --help' for usage.")
		return 2
	}
	if !errors.Is(err, errReported) {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return 1
}

// cli holds parsed flags.
type cli struct {
	configPath string
	envFile    string
	eval       string
	format     string
	workers    int
	trace      bool
	check      bool
	watch      bool
	quiet      bool
	noRead     bool
	noWrite    bool
	noConnect  bool
	noRun      bool
	noColor    bool
	version    bool
	help       bool
}

func parseFlags(args []string) (*cli, []string, error) {
	var c cli
	flags := flag.NewFlagSet("flume", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	flags.StringVar(&c.configPath, "config", "", "Path to config file")
	flags.StringVar(&c.envFile, "env-file", "", "Read variables from a .env file")
	flags.StringVar(&c.eval, "e", "", "Evaluate statements")
	flags.StringVar(&c.eval, "eval", "", "Evaluate statements")
	flags.StringVar(&c.format, "format", "", "Output format")
	flags.IntVar(&c.workers, "workers", 0, "Parallel workers")
	flags.BoolVar(&c.trace, "trace", false, "Trace statements")
	flags.BoolVar(&c.check, "check", false, "Check syntax")
	flags.BoolVar(&c.watch, "watch", false, "Re-run on change")
	flags.BoolVar(&c.quiet, "quiet", false, "Do not print the final table")
	flags.BoolVar(&c.quiet, "q", false, "Do not print the final table")
	flags.BoolVar(&c.noRead, "no-read", false, "Deny READ")
	flags.BoolVar(&c.noWrite, "no-write", false, "Deny WRITE")
	flags.BoolVar(&c.noConnect, "no-connect", false, "Deny CONNECT")
	flags.BoolVar(&c.noRun, "no-run", false, "Deny RUN and SH")
	flags.BoolVar(&c.noColor, "no-color", false, "Disable color")
	flags.BoolVar(&c.version, "V", false, "Show version")
	flags.BoolVar(&c.version, "version", false, "Show version")
	flags.BoolVar(&c.help, "h", false, "Show help")
	flags.BoolVar(&c.help, "help", false, "Show help")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.help = true
			return &c, nil, nil
		}
		return nil, nil, usageError{err}
	}
	return &c, flags.Args(), nil
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	if len(args) > 0 && args[0] == "describe" {
		return runDescribe(args[1:], stdout)
	}

	c, rest, err := parseFlags(args)
	if err != nil {
		return err
	}
	if c.help {
		printUsage(stdout)
		return nil
	}
	if c.version {
		fmt.Fprintf(stdout, "flume version %s (%s)\n", Version, Commit)
		return nil
	}
	if c.check {
		if len(rest) == 0 {
			return usageError{errors.New("--check requires at least one file")}
		}
		return checkFiles(rest, stderr, useColor(stderr, c.noColor, "auto"))
	}

	if c.envFile != "" {
		vars, err := config.ReadEnvFile(c.envFile)
		if err != nil {
			return err
		}
		getenv = config.Getenv(vars, getenv)
	}
	cfg, err := config.Load(c.configPath, getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := applyFlags(cfg, c); err != nil {
		return err
	}
	for _, warning := range config.Warnings(cfg) {
		fmt.Fprintf(stderr, "warning: %s\n", warning)
	}

	rt := newRuntime(cfg, c, stdout, stderr, getenv)
	defer rt.Close()
	errColor := useColor(stderr, c.noColor, cfg.Output.Color)

	switch {
	case c.eval != "":
		return execInline(ctx, rt, c, rest, stderr, errColor)
	case c.watch:
		if len(rest) == 0 {
			return usageError{errors.New("--watch requires a script")}
		}
		return watchScript(ctx, rt, rest[0], scriptArgs(rest[1:]), c.quiet, stderr, errColor)
	case len(rest) > 0:
		return execFile(ctx, rt, rest[0], scriptArgs(rest[1:]), c.quiet, stderr, errColor)
	default:
		return repl.Start(ctx, repl.Options{
			Runtime:     rt,
			Out:         stdout,
			Prompt:      cfg.REPL.Prompt,
			HistoryFile: cfg.REPL.HistoryFile,
			Version:     Version,
			Color:       errColor,
		})
	}
}

// applyFlags lets command-line flags override the configuration.
func applyFlags(cfg *config.Config, c *cli) error {
	if c.workers != 0 {
		cfg.Engine.Workers = c.workers
	}
	if c.trace {
		cfg.Engine.Trace = true
	}
	if c.format != "" {
		cfg.Output.Format = c.format
	}
	if c.noColor {
		cfg.Output.Color = "never"
	}
	if c.noRead {
		cfg.Security.AllowRead = false
	}
	if c.noWrite {
		cfg.Security.AllowWrite = false
	}
	if c.noConnect {
		cfg.Security.AllowConnect = false
	}
	if c.noRun {
		cfg.Security.AllowRun = false
	}
	if err := config.Validate(cfg); err != nil {
		return usageError{err}
	}
	return nil
}

func newRuntime(cfg *config.Config, c *cli, stdout, stderr io.Writer, getenv func(string) string) *flume.Runtime {
	presets := make(map[string]source.Preset, len(cfg.Sources))
	for name, s := range cfg.Sources {
		presets[name] = source.Preset{Kind: strings.ToUpper(s.Kind), URL: s.URL}
	}
	perms := engine.Permissions{
		Read:    cfg.Security.AllowRead,
		Write:   cfg.Security.AllowWrite,
		Connect: cfg.Security.AllowConnect,
		Run:     cfg.Security.AllowRun,
	}

	opts := flume.Options{
		Permissions:  &perms,
		Logger:       flume.WriterLogger(stdout),
		Workers:      cfg.Engine.Workers,
		Stdout:       stdout,
		OutputFormat: strings.ToUpper(cfg.Output.Format),
		Printer: printer.Options{
			Color:    useColor(stdout, c.noColor, cfg.Output.Color),
			Locale:   cfg.Output.Locale,
			MaxRows:  cfg.Output.MaxRows,
			MaxWidth: cfg.Output.MaxWidth,
			Null:     cfg.Output.Null,
		},
		Fetch: fetch.Options{
			HTTPTimeout:           cfg.HTTP.Timeout,
			UserAgent:             cfg.HTTP.UserAgent,
			KnownHosts:            cfg.SFTP.KnownHosts,
			IdentityFile:          cfg.SFTP.IdentityFile,
			InsecureIgnoreHostKey: cfg.SFTP.InsecureIgnoreHostKey,
			SFTPTimeout:           cfg.SFTP.Timeout,
		},
		Sources: source.Options{
			Presets: presets,
			OnError: func(key string, err error) {
				fmt.Fprintf(stderr, "warning: closing %s: %v\n", key, err)
			},
		},
		Shell:  cfg.Engine.Shell,
		Getenv: getenv,
	}
	if cfg.Engine.Trace {
		opts.Trace = flume.WriterLogger(stderr)
	}
	return flume.New(opts)
}

// useColor decides whether to style output written to w.
func useColor(w io.Writer, noColor bool, mode string) bool {
	if noColor {
		return false
	}
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// scriptArgs turns command-line arguments into script variables, inferring
// numbers and booleans.
func scriptArgs(args []string) []table.Value {
	vals := make([]table.Value, len(args))
	for i, a := range args {
		vals[i] = table.Infer(a)
	}
	return vals
}

func execInline(ctx context.Context, rt *flume.Runtime, c *cli, args []string, stderr io.Writer, errColor bool) error {
	env := rt.NewEnv(append([]table.Value{"-e"}, scriptArgs(args)...)...)
	defer env.Close()
	_, last, _, err := rt.Exec(ctx, env, c.eval, "<eval>")
	if err != nil {
		printError(stderr, err, errColor)
		return errReported
	}
	return printResult(ctx, rt, last, c.quiet, stderr, errColor)
}

func execFile(ctx context.Context, rt *flume.Runtime, path string, args []table.Value, quiet bool, stderr io.Writer, errColor bool) error {
	env, last, err := rt.RunFile(ctx, path, args...)
	if env != nil {
		defer env.Close()
	}
	if err != nil {
		printError(stderr, err, errColor)
		return errReported
	}
	return printResult(ctx, rt, last, quiet, stderr, errColor)
}

// printResult prints the script's final table. A last statement that
// produced no table, such as WRITE or PRINT, prints nothing.
func printResult(ctx context.Context, rt *flume.Runtime, last *table.Table, quiet bool, stderr io.Writer, errColor bool) error {
	if quiet || last == nil {
		return nil
	}
	if err := rt.Print(ctx, last); err != nil {
		printError(stderr, err, errColor)
		return errReported
	}
	return nil
}

func printError(w io.Writer, err error, useColor bool) {
	c := color.New(color.FgRed)
	if useColor {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	if fe, ok := ferrors.As(err); ok {
		c.Fprintln(w, fe.PrettyString())
		return
	}
	c.Fprintf(w, "error: %v\n", err)
}

// checkFiles checks the syntax of one or more files without executing them
func checkFiles(files []string, stderr io.Writer, errColor bool) error {
	failed := 0
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			failed++
			continue
		}
		if _, err := flume.ParseScript(string(src), path); err != nil {
			printError(stderr, err, errColor)
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(stderr, "%d of %d files failed\n", failed, len(files))
		return errReported
	}
	return nil
}

// runDescribe implements 'flume describe [command]'
func runDescribe(args []string, stdout io.Writer) error {
	rt := flume.New(flume.Options{Stdout: stdout})
	defer rt.Close()
	commands := rt.Engine().Commands()

	if len(args) == 0 {
		fmt.Fprintln(stdout, "Commands:")
		for _, line := range commands.Summary() {
			fmt.Fprintln(stdout, line)
		}
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Functions:")
		fmt.Fprintln(stdout, "  "+strings.Join(rt.Engine().Functions().Names(), ", "))
		return nil
	}
	for i, name := range args {
		lines, err := commands.Describe(name)
		if err != nil {
			return usageError{err}
		}
		if i > 0 {
			fmt.Fprintln(stdout, "")
		}
		for _, line := range lines {
			fmt.Fprintln(stdout, line)
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `flume - a language for tables, version %s

Usage:
  flume [options] [script] [args...]
  flume -e "statements" [args...]
  flume --check <file>...
  flume --watch <script> [args...]
  flume describe [command]

With no script, flume starts an interactive shell.

Options:
  --config <path>       Config file (default: $FLUME_CONFIG, ./flume.yaml,
                        ~/.config/flume/flume.yaml)
  --env-file <path>     Read $variables from a .env file
  -e, --eval <code>     Run statements given on the command line
  --check               Check syntax without running
  --watch               Run the script again whenever it changes
  --format <format>     Output format: TEXT, CSV, TSV, JSON, JSONL, YAML,
                        MARKDOWN or HTML
  -q, --quiet           Do not print the final table
  --trace               Log each statement to stderr
  --workers <n>         Parallel READ, QUERY and SH invocations
  --no-read             Deny READ
  --no-write            Deny WRITE
  --no-connect          Deny CONNECT
  --no-run              Deny RUN and SH
  --no-color            Disable color
  -h, --help            Show this help message
  -V, --version         Show version information

Examples:
  flume report.flume 2024
  flume -e 'READ "people.csv"
SORT BY salary DESC
TAKE 10'
  flume --format CSV -e 'READ "data.json"' > data.csv
  flume describe SORT
`, Version)
}
