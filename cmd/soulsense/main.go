package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/bootstrap"
	"github.com/soul-sense/desktop/internal/config"
	"github.com/soul-sense/desktop/internal/deeplink"
	"github.com/soul-sense/desktop/internal/logging"
	"github.com/soul-sense/desktop/internal/sidecar"
	"github.com/soul-sense/desktop/internal/telemetry"
	"github.com/soul-sense/desktop/internal/updater"
	"github.com/soul-sense/desktop/internal/version"
)

// telemetryFlushTimeout bounds the final wait for crash reports before exit.
const telemetryFlushTimeout = 2 * time.Second

type options struct {
	configPath string
	debug      bool
	noGUI      bool
	// positional arguments, where the OS passes deep links
	args []string
}

func parseFlags(args []string) (options, error) {
	fs := pflag.NewFlagSet("soulsense", pflag.ContinueOnError)
	configPath := fs.String("config", "config.yml", "Path to configuration file")
	debug := fs.Bool("debug", false, "Enable debug logging")
	noGUI := fs.Bool("nogui", false, "Run without GUI")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return options{
		configPath: *configPath,
		debug:      *debug,
		noGUI:      *noGUI,
		args:       fs.Args(),
	}, nil
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer, telemetryOpts ...telemetry.Option) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	if opts.debug {
		cfg.Application.Debug = true
	}

	reporter := telemetry.NewClient(cfg.Telemetry, version.Release(), telemetryOpts...)
	logOpts := logging.OptionsFromConfig(cfg)
	logOpts.Tee = append(logOpts.Tee, reporter.Core())
	logger, level, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()
	defer reporter.Recover()

	links := deeplink.FromArgs(opts.args, cfg.DeepLink.Scheme)
	instance := deeplink.NewInstance(cfg.RuntimeDir, logger)
	switch err := instance.Acquire(); {
	case errors.Is(err, deeplink.ErrAlreadyRunning):
		if len(links) == 0 {
			logger.Info("Another instance is already running")
			return 0
		}
		if err := instance.Forward(links); err != nil {
			logger.Error("Failed to forward deep links to running instance", zap.Error(err))
			return 1
		}
		logger.Info("Deep links forwarded to running instance", zap.Int("count", len(links)))
		return 0
	case err != nil:
		logger.Warn("Single-instance guard unavailable", zap.Error(err))
		instance = nil
	default:
		defer instance.Release()
	}

	h, err := newHost(cfg, logger, opts.noGUI)
	if err != nil {
		logger.Error("Failed to create host", zap.Error(err))
		return 1
	}

	dlOpts := []deeplink.Option{}
	if instance != nil {
		dlOpts = append(dlOpts, deeplink.WithInstance(instance))
	}

	logger.Info("Starting SoulSense",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.Bool("debug", cfg.Application.Debug))

	err = bootstrap.NewBuilder(cfg, logger).
		Telemetry(reporter).
		Host(h).
		Plugin(sidecar.NewPlugin()).
		Plugin(updater.NewPlugin()).
		Plugin(deeplink.NewPlugin(opts.args, dlOpts...)).
		Setup(bootstrap.DefaultSetup(level)).
		Run(ctx)

	code := exitCode(err, logger, stderr)
	// the fatal entry is logged after the app's own flush
	if code != 0 && !reporter.Flush(telemetryFlushTimeout) {
		fmt.Fprintln(stderr, "crash report may not have been delivered")
	}
	return code
}

// exitCode reports err and maps it to the process exit status.
func exitCode(err error, logger *zap.Logger, stderr io.Writer) int {
	if err == nil {
		return 0
	}

	var fatal *bootstrap.FatalError
	var setupErr *bootstrap.SetupError
	switch {
	case errors.As(err, &fatal):
		logger.Error("Application failed", zap.String("kind", string(fatal.Kind)), zap.Error(err))
		fmt.Fprintf(stderr, "fatal: %v\n", err)
	case errors.As(err, &setupErr):
		logger.Error("Setup failed", zap.String("plugin", setupErr.Plugin), zap.Error(err))
		fmt.Fprintln(stderr, err)
	default:
		logger.Error("Application failed", zap.Error(err))
		fmt.Fprintln(stderr, err)
	}
	return 1
}
