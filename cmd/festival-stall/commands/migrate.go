package commands

import (
	"festival-stall/internal/common/logger"
	"festival-stall/internal/connections/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the stall tables if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lg := logger.New("migrate")
		defer lg.Sync()

		pool, err := database.Connect(cmd.Context(), cfg.Database, lg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := database.Migrate(cmd.Context(), pool); err != nil {
			lg.Error("migration_failed", err, nil)
			return err
		}
		lg.Info("migration_applied", map[string]any{"database": cfg.Database.Name})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
