package commands

import (
	"context"
	"os/signal"
	"syscall"

	"festival-stall/internal/app"
	"festival-stall/internal/common/logger"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and socket gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lg := logger.New("festival-stall")
		defer lg.Sync()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := app.Run(ctx, cfg, lg); err != nil {
			lg.Error("fatal", err, nil)
			return err
		}
		lg.Info("service_stopped", nil)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
