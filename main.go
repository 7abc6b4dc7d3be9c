// sysmon-pulse samples local system metrics on a fixed interval and keeps a
// rolling window of CPU and memory utilisation.
//
// Usage:
//
//	sysmon-pulse [flags]
//
// Flags:
//
//	-config string     Path to configuration file (default: ~/.config/sysmon-pulse/config.yaml)
//	-interval duration Tick interval override (e.g. 500ms, 2s)
//	-window int        Rolling window size override
//	-disk-path string  Mount point for disk usage
//	-once              Take one sample, print it as JSON and exit
//	-verbose           Enable debug logging
//	-version           Print version and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/x/term"

	"gitlab.com/tinyland/lab/sysmon-pulse/collectors/retry"
	"gitlab.com/tinyland/lab/sysmon-pulse/collectors/sysmetrics"
	"gitlab.com/tinyland/lab/sysmon-pulse/config"
	"gitlab.com/tinyland/lab/sysmon-pulse/internal/format"
	"gitlab.com/tinyland/lab/sysmon-pulse/monitor"
)

// options holds parsed command-line flags. set records which flags were
// given explicitly so only those override the configuration.
type options struct {
	configPath string
	interval   time.Duration
	window     int
	diskPath   string
	once       bool
	verbose    bool
	version    bool

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("sysmon-pulse", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{set: make(map[string]bool)}
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file (default: "+config.DefaultPath()+")")
	fs.DurationVar(&opts.interval, "interval", 0, "Tick interval override (e.g. 500ms, 2s)")
	fs.IntVar(&opts.window, "window", 0, "Rolling window size override")
	fs.StringVar(&opts.diskPath, "disk-path", "", "Mount point for disk usage")
	fs.BoolVar(&opts.once, "once", false, "Take one sample, print it as JSON and exit")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, nil
}

// apply overrides cfg with explicitly set flags.
func (o *options) apply(cfg *config.Config) {
	if o.set["interval"] {
		cfg.Monitor.Interval = o.interval
	}
	if o.set["window"] {
		cfg.Monitor.WindowSize = o.window
	}
	if o.set["disk-path"] {
		cfg.Sampler.DiskPath = o.diskPath
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
}

// loadConfig resolves configuration in order: defaults, YAML file, .env,
// SYSMON_* environment, command-line flags.
func loadConfig(opts *options, lookup func(string) (string, bool)) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	opts.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildLogger returns a text logger for terminals and a JSON logger
// otherwise, unless the format is forced.
func buildLogger(w io.Writer, cfg config.LogConfig, tty bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	useText := tty
	switch cfg.Format {
	case "text":
		useText = true
	case "json":
		useText = false
	}

	if useText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "sysmon-pulse: %v\n", err)
		return 2
	}

	if opts.version {
		fmt.Printf("sysmon-pulse %s (%s) built %s\n", version, commit, date)
		return 0
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "sysmon-pulse: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(opts, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sysmon-pulse: %v\n", err)
		return 1
	}

	logger := buildLogger(os.Stderr, cfg.Log, term.IsTerminal(os.Stderr.Fd()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sampler := sysmetrics.NewSampler(sysmetrics.Config{
		DiskPath:     cfg.Sampler.DiskPath,
		QueryTimeout: cfg.Sampler.QueryTimeout,
		Logger:       logger,
	})

	if opts.once {
		if err := runOnce(ctx, sampler, os.Stdout, onceGap); err != nil {
			logger.Error("sample failed", "error", err)
			return 1
		}
		return 0
	}

	if err := runMonitor(ctx, cfg, sampler, logger); err != nil {
		logger.Error("monitor failed", "error", err)
		return 1
	}
	return 0
}

// runMonitor starts the engine and blocks until ctx is cancelled.
func runMonitor(ctx context.Context, cfg *config.Config, sampler monitor.Sampler, logger *slog.Logger) error {
	engine := monitor.New(sampler, logger)
	if err := engine.Configure(cfg.Monitor.Interval, cfg.Monitor.WindowSize); err != nil {
		return err
	}
	engine.OnTick(tickLogger(logger))

	logger.Info("starting sysmon-pulse",
		"version", version,
		"disk_path", cfg.Sampler.DiskPath,
		"query_timeout", cfg.Sampler.QueryTimeout,
	)

	if err := engine.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	engine.Stop()

	stats := engine.Stats()
	logger.Info("sysmon-pulse exiting",
		"ran_for", format.Elapsed(stats.StartedAt, time.Now()),
		"ticks", format.Count(stats.Ticks),
		"skipped", stats.Skipped,
	)
	logSuspended(logger, sampler, stats.Suspended)
	return nil
}

// logSuspended warns about subgroups still suspended at exit, with breaker
// detail when the sampler exposes it.
func logSuspended(logger *slog.Logger, sampler monitor.Sampler, groups []string) {
	if len(groups) == 0 {
		return
	}
	var detail map[string]retry.Stats
	if bs, ok := sampler.(interface{ BreakerStats() map[string]retry.Stats }); ok {
		detail = bs.BreakerStats()
	}
	for _, g := range groups {
		st := detail[g]
		logger.Warn("subgroup suspended at exit",
			"group", g,
			"state", st.State,
			"timeouts", st.TotalFailures,
			"skipped", st.ConsecutiveSkips,
			"retry_after", st.CurrentTimeout,
		)
	}
}
