package cmd

import (
	"fmt"

	"github.com/psds-microservice/support-chat-service/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	RunE:  runMigrateDown,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := database.MigrateUp(cmd.Context(), cfg.DatabaseURL(), log); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("migrate up: ok")
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	return database.MigrateDown(cmd.Context(), cfg.DatabaseURL(), log)
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	return database.MigrationStatus(cmd.Context(), cfg.DatabaseURL(), log)
}
