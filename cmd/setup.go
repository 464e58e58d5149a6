package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/config"
	"github.com/theirongolddev/ccmeter/internal/tui/theme"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive first-run configuration",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()

	basePaths := strings.Join(cfg.General.BasePaths, ", ")
	windowDays := strconv.Itoa(cfg.General.WindowDays)
	refreshSecs := strconv.Itoa(cfg.General.RefreshIntervalSeconds)
	themeName := cfg.Appearance.Theme
	strict := cfg.General.StrictUnknownModels
	useCache := cfg.General.UseCache

	themeOptions := make([]huh.Option[string], 0, len(theme.All))
	for _, t := range theme.All {
		themeOptions = append(themeOptions, huh.NewOption(t.Name, t.Name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Log directories").
				Description("Comma-separated; leave empty for the standard Claude Code locations.").
				Value(&basePaths),
			huh.NewInput().
				Title("Analysis window (days)").
				Validate(validatePositiveInt).
				Value(&windowDays),
			huh.NewInput().
				Title("Refresh interval (seconds)").
				Validate(validatePositiveInt).
				Value(&refreshSecs),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOptions...).
				Value(&themeName),
			huh.NewConfirm().
				Title("Cache extracted records between runs?").
				Value(&useCache),
			huh.NewConfirm().
				Title("Fail on unknown models instead of assuming sonnet rates?").
				Value(&strict),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	cfg.General.BasePaths = nil
	for _, p := range strings.Split(basePaths, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.General.BasePaths = append(cfg.General.BasePaths, p)
		}
	}
	cfg.General.WindowDays, _ = strconv.Atoi(windowDays)
	cfg.General.RefreshIntervalSeconds, _ = strconv.Atoi(refreshSecs)
	cfg.General.StrictUnknownModels = strict
	cfg.General.UseCache = useCache
	cfg.Appearance.Theme = themeName

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("  Saved %s\n", config.ConfigPath())
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}
