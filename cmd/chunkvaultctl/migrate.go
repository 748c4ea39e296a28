package main

import (
	"context"
	"database/sql"
	"errors"

	"github.com/chunkvault/chunkvault/internal/database"
	"github.com/spf13/cobra"
)

var migrateDSN string

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
		Long: `Apply or inspect the embedded schema migrations.

Examples:
  # Apply every pending migration
  chunkvaultctl migrate up --dsn postgres://chunkvault@localhost/chunkvault

  # Show applied and pending migrations
  chunkvaultctl migrate status`,
	}
	migrateCmd.PersistentFlags().StringVar(&migrateDSN, "dsn", envOr("POSTGRES_DSN", ""), "Postgres connection string (default $POSTGRES_DSN)")

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), database.RunMigrations)
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), database.MigrationStatus)
		},
	})
	return migrateCmd
}

func withDB(ctx context.Context, fn func(context.Context, *sql.DB) error) error {
	if migrateDSN == "" {
		return errors.New("no DSN: pass --dsn or set POSTGRES_DSN")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := database.OpenPostgres(ctx, migrateDSN, database.PostgresOptions{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}
