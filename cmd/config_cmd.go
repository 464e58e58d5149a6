package cmd

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccmeter/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if config.Exists() {
		fmt.Printf("# %s\n", config.ConfigPath())
	} else {
		fmt.Println("# defaults (no config file; run `ccmeter setup` to create one)")
	}

	enc := toml.NewEncoder(os.Stdout)
	return enc.Encode(cfg)
}
