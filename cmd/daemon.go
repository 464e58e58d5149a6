package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/daemon"
)

var (
	flagDaemonAddr     string
	flagDaemonInterval time.Duration
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run a background monitor with HTTP, SSE, and Prometheus endpoints",
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&flagDaemonAddr, "addr", "127.0.0.1:8791", "HTTP listen address")
	daemonCmd.Flags().DurationVar(&flagDaemonInterval, "interval", 0, "Refresh interval (default from config)")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	logger := newLogger()
	cfg := loadConfig(logger)
	engine, closeCache := buildEngine(cfg, logger)
	defer closeCache()

	interval := cfg.RefreshInterval()
	if flagDaemonInterval > 0 {
		interval = flagDaemonInterval
	}

	windowDays := cfg.General.WindowDays
	if flagDays > 0 {
		windowDays = flagDays
	}

	basePaths := cfg.ResolvedBasePaths()
	if len(flagBasePaths) > 0 {
		basePaths = flagBasePaths
	}

	svc := daemon.New(engine, daemon.Config{
		BasePaths:  basePaths,
		WindowDays: windowDays,
		Interval:   interval,
		Addr:       flagDaemonAddr,
	}, logger)

	fmt.Printf("  ccmeter daemon listening on http://%s\n", flagDaemonAddr)
	fmt.Printf("  Refreshing every %s\n", interval)

	ctx, cancel := signalContext()
	defer cancel()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
