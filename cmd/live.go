package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/sched"
	"github.com/theirongolddev/ccmeter/internal/tui"
)

var flagLiveInterval time.Duration

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Live dashboard that refreshes as you work",
	RunE:  runLive,
}

func init() {
	liveCmd.Flags().DurationVar(&flagLiveInterval, "interval", 0, "Refresh interval (default from config)")
	rootCmd.AddCommand(liveCmd)
}

func runLive(_ *cobra.Command, _ []string) error {
	logger := newLogger()
	cfg := loadConfig(logger)
	engine, closeCache := buildEngine(cfg, logger)
	defer closeCache()

	interval := cfg.RefreshInterval()
	if flagLiveInterval > 0 {
		interval = flagLiveInterval
	}

	compute := func(ctx context.Context) (*model.Metrics, error) {
		start, end := analysisWindow(cfg)
		return engine.Compute(ctx, start, end)
	}
	scheduler := sched.New(compute, interval, logger)

	return tui.Run(tui.NewApp(scheduler, interval, cfg.Precision.DisplayDecimals))
}
