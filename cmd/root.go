// Package cmd implements the ccmeter command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/cli"
	"github.com/theirongolddev/ccmeter/internal/config"
	"github.com/theirongolddev/ccmeter/internal/pipeline"
	"github.com/theirongolddev/ccmeter/internal/store"
	"github.com/theirongolddev/ccmeter/internal/tui/theme"
)

var (
	flagDays      int
	flagBasePaths []string
	flagNoCache   bool
	flagStrict    bool
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "ccmeter",
	Short: "Live Claude Code usage metrics",
	Long:  "Monitor Claude Code usage from its local logs: cost, tokens, burn rate, adaptive limits, and exhaustion predictions.",
	RunE:  runReport,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&flagDays, "days", "n", 0, "Analysis window in days (default from config)")
	rootCmd.PersistentFlags().StringSliceVar(&flagBasePaths, "base-path", nil, "Log directory to scan (repeatable; default Claude Code locations)")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "Skip the SQLite record cache, re-extract everything")
	rootCmd.PersistentFlags().BoolVar(&flagStrict, "strict", false, "Fail on models missing from the pricing table")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging to stderr")
}

func newLogger() zerolog.Logger {
	level := zerolog.ErrorLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func loadConfig(logger zerolog.Logger) config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("config unreadable, using defaults")
	}
	theme.SetActive(cfg.Appearance.Theme)
	return cfg
}

// buildEngine wires the metrics engine from config and flags. The
// returned closer releases the record cache, if one was opened.
func buildEngine(cfg config.Config, logger zerolog.Logger) (*pipeline.Engine, func()) {
	basePaths := cfg.ResolvedBasePaths()
	if len(flagBasePaths) > 0 {
		basePaths = flagBasePaths
	}

	var cache pipeline.RecordCache
	closer := func() {}
	if cfg.General.UseCache && !flagNoCache {
		c, err := store.Open(store.CachePath())
		if err != nil {
			logger.Debug().Err(err).Msg("record cache unavailable, doing full extraction")
		} else {
			cache = c
			closer = func() { _ = c.Close() }
		}
	}

	engine := pipeline.NewEngine(pipeline.Options{
		BasePaths:       basePaths,
		SessionDuration: cfg.SessionDuration(),
		StrictModels:    flagStrict || cfg.General.StrictUnknownModels,
		P90: pipeline.P90Config{
			CommonLimits:    cfg.P90.CommonLimits,
			LimitThreshold:  cfg.P90.LimitThreshold,
			DefaultMinLimit: cfg.P90.DefaultMinLimit,
			CacheTTL:        time.Duration(cfg.P90.CacheTTLSeconds) * time.Second,
		},
		Cache:  cache,
		Logger: logger,
	})
	return engine, closer
}

// analysisWindow resolves the [start, end) window from flags and config.
func analysisWindow(cfg config.Config) (time.Time, time.Time) {
	now := time.Now().UTC()
	if flagDays > 0 {
		return now.AddDate(0, 0, -flagDays), now
	}
	return cfg.Window(now)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runReport(_ *cobra.Command, _ []string) error {
	logger := newLogger()
	cfg := loadConfig(logger)
	engine, closeCache := buildEngine(cfg, logger)
	defer closeCache()

	ctx, cancel := signalContext()
	defer cancel()

	start, end := analysisWindow(cfg)
	m, err := engine.Compute(ctx, start, end)
	if err != nil {
		return fmt.Errorf("computing metrics: %w", err)
	}

	fmt.Println(cli.RenderMetrics(m, cfg.Precision.DisplayDecimals))
	return nil
}
