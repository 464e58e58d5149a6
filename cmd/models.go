package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/cli"
	"github.com/theirongolddev/ccmeter/internal/model"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Per-model usage across the whole window",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(_ *cobra.Command, _ []string) error {
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

	// Whole-window view: merge every non-gap block, not just active ones.
	merged := make(map[string]*model.ModelStats)
	var totalCost float64
	for _, b := range m.Blocks {
		if b.IsGap {
			continue
		}
		for name, ms := range b.PerModel {
			dst, ok := merged[name]
			if !ok {
				dst = &model.ModelStats{}
				merged[name] = dst
			}
			dst.Add(*ms)
		}
		totalCost += b.CostUSD
	}
	if len(merged) == 0 {
		fmt.Println("  No usage in the analysis window.")
		return nil
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return merged[names[i]].CostUSD > merged[names[j]].CostUSD
	})

	t := cli.Table{
		Title:   "Models",
		Headers: []string{"Model", "Calls", "Tokens", "Cache", "Cost", "Share"},
	}
	for _, name := range names {
		ms := merged[name]
		share := 0.0
		if totalCost > 0 {
			share = ms.CostUSD / totalCost * 100
		}
		t.Rows = append(t.Rows, []string{
			name,
			cli.FormatNumber(int64(ms.Entries)),
			cli.FormatTokens(ms.Tokens.Usage()),
			cli.FormatTokens(ms.Tokens.CacheCreate + ms.Tokens.CacheRead),
			cli.FormatUSD(ms.CostUSD, cfg.Precision.DisplayDecimals),
			cli.FormatPercent(share),
		})
	}

	fmt.Println(cli.RenderTable(t))
	return nil
}
