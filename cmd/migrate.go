package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/breezapp/breez/internal/config"
	"github.com/breezapp/breez/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var (
		storage     string
		databaseURL string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long: `Create or update the integrations and tasks tables.

serve migrates on startup as well; run this ahead of a deployment when the
application's database user lacks DDL permissions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("storage") {
				cfg.Storage = storage
			}
			if cmd.Flags().Changed("database-url") {
				cfg.DatabaseURL = databaseURL
			}
			cfg.ApplyDefaults()
			return runMigrate(cmd, cfg, slog.Default())
		},
	}

	cmd.Flags().StringVar(&storage, "storage", config.DefaultStorage, "Storage backend: sqlite or postgres. Can also use BREEZ_STORAGE env var.")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Database DSN (postgres) or file path (sqlite). Can also use BREEZ_DATABASE_URL env var.")

	return cmd
}

func runMigrate(cmd *cobra.Command, cfg config.Config, logger *slog.Logger) error {
	if cfg.Storage != store.BackendSQLite && cfg.Storage != store.BackendPostgres {
		return fmt.Errorf("migrate requires sqlite or postgres storage, got %q", cfg.Storage)
	}

	// OpenSQL migrates the schema.
	st, err := store.OpenSQL(cfg.Storage, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("Error closing storage", "error", err)
		}
	}()

	if err := st.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("database not reachable after migration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", cfg.Storage)
	return nil
}
