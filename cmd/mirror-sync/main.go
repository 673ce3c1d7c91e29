package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yuya-takeyama/mirror-sync/internal/config"
	"github.com/yuya-takeyama/mirror-sync/internal/lock"
	"github.com/yuya-takeyama/mirror-sync/internal/logging"
	"github.com/yuya-takeyama/mirror-sync/pkg/executor"
	"github.com/yuya-takeyama/mirror-sync/pkg/logger"
	"github.com/yuya-takeyama/mirror-sync/pkg/planner"
	"github.com/yuya-takeyama/mirror-sync/pkg/reconciler"
	"github.com/yuya-takeyama/mirror-sync/pkg/report"
	"github.com/yuya-takeyama/mirror-sync/pkg/s3client"
	"github.com/yuya-takeyama/mirror-sync/pkg/scheduler"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

const (
	exitStartup   = 1
	exitRunFailed = 2
)

// flag name to config key
var flagKeys = map[string]string{
	"interval":         config.KeyInterval,
	"log-file":         config.KeyLogFile,
	"exclude":          config.KeyExclude,
	"compare":          config.KeyCompare,
	"once":             config.KeyOnce,
	"quiet":            config.KeyQuiet,
	"log-level":        config.KeyLogLevel,
	"report-json-file": config.KeyReportJSONFile,
	"report-s3-uri":    config.KeyReportS3URI,
	"profile":          config.KeyProfile,
	"region":           config.KeyRegion,
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mirror-sync <source> <replica>",
		Short: "Periodically mirror a source directory onto a replica",
		Long: `mirror-sync keeps a replica directory identical to a source directory.
Every interval it creates files missing from the replica, overwrites files
whose content differs and deletes anything the source no longer has.`,
		Version: fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, stdout, stderr)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.Flags()
	flags.SortFlags = false
	flags.Int("interval", config.DefaultInterval, "Seconds between the end of one run and the start of the next")
	flags.String("log-file", config.DefaultLogFile, "Action log file, opened in append mode")
	flags.StringSlice("exclude", nil, "Exclude patterns relative to the tree root (multiple allowed)")
	flags.String("compare", string(planner.CompareContent), "File comparison: content or quick (size and mtime first)")
	flags.Bool("once", false, "Run a single reconciliation and exit")
	flags.Bool("quiet", false, "Suppress per-file console output")
	flags.String("log-level", config.DefaultLogLevel, "Diagnostic log level: debug, info, warn or error")
	flags.String("report-json-file", "", "Write the report of the latest run to this JSON file")
	flags.String("report-s3-uri", "", "Upload every run report below s3://bucket/prefix")
	flags.String("profile", "", "AWS profile to use for report uploads")
	flags.String("region", "", "AWS region for report uploads (uses default if not specified)")
	flags.String("config", "", "Config file (yaml, json or toml)")

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, scheduler.ErrRunFailed):
		return exitRunFailed
	default:
		return exitStartup
	}
}

func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	v := config.NewViper()
	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	configFile, _ := cmd.Flags().GetString("config")
	if err := config.ReadFile(v, configFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(v, args[0], args[1])
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func run(cmd *cobra.Command, args []string, stdout, stderr io.Writer) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	// arguments are fine from here on
	cmd.SilenceUsage = true

	replicaLock, err := lock.New("", cfg.Replica)
	if err != nil {
		return err
	}
	if err := replicaLock.Lock(); err != nil {
		return fmt.Errorf("%s: %w", cfg.Replica, err)
	}
	defer replicaLock.Unlock()

	syncLogger, err := logger.Open(cfg.LogFile, stdout, cfg.Quiet)
	if err != nil {
		return err
	}
	defer syncLogger.Close()

	logging.Setup(stderr, syncLogger, level)

	sinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return err
	}

	opts := planner.Options{
		Mode:     cfg.Compare,
		Excludes: cfg.Excludes,
	}
	rec := reconciler.New(
		planner.NewComparator(opts),
		executor.NewExecutor(syncLogger, cfg.Excludes),
		syncLogger,
	)
	sched := scheduler.New(rec, logging.NewPrinter(stdout, cfg.Quiet), scheduler.Options{
		Source:   cfg.Source,
		Replica:  cfg.Replica,
		Interval: cfg.Interval,
		Once:     cfg.Once,
	}, sinks...)

	slog.Info("mirror-sync start",
		"source", cfg.Source,
		"replica", cfg.Replica,
		"interval", cfg.Interval,
		"compare", cfg.Compare,
		"logFile", cfg.LogFile,
	)
	started := time.Now()
	defer func() { slog.Info("mirror-sync stop", "uptime", time.Since(started).Round(time.Second)) }()

	return sched.Start(ctx)
}

func buildSinks(ctx context.Context, cfg *config.Config) ([]report.Sink, error) {
	var sinks []report.Sink
	if cfg.ReportJSONFile != "" {
		sinks = append(sinks, &report.FileSink{Path: cfg.ReportJSONFile})
	}
	if cfg.ReportS3URI != "" {
		awsCfg, err := s3client.LoadConfig(ctx, cfg.Profile, cfg.Region)
		if err != nil {
			return nil, err
		}
		sink, err := report.NewS3Sink(s3client.NewAWSClient(awsCfg), cfg.ReportS3URI)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}
