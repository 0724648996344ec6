package commands

import (
	"fmt"
	"os"

	"festival-stall/internal/common/config"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "festival-stall",
	Short: "Order intake, stock ledger and live screens for a festival food stall",
	Long: `festival-stall runs the stall's order and stock API together with the
socket gateway that keeps kitchen, cashier, pickup and admin screens in sync.

Configuration is read from --config (or config.yaml when present) and
overridden by STALL_* environment variables.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config")
}

func loadConfig() (config.App, error) {
	path := configPath
	if path == "" {
		if found, err := config.FindConfig(); err == nil {
			path = found
		}
	}
	return config.Load(path)
}
