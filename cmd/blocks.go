package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/cli"
)

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List five-hour session blocks and gaps",
	RunE:  runBlocks,
}

func init() {
	rootCmd.AddCommand(blocksCmd)
}

func runBlocks(_ *cobra.Command, _ []string) error {
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

	if len(m.Blocks) == 0 {
		fmt.Println("  No usage in the analysis window.")
		return nil
	}

	fmt.Println(cli.RenderBlocks(m.Blocks, cfg.Precision.DisplayDecimals))
	return nil
}
