package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/genstudio/backend/internal/config"
	"github.com/genstudio/backend/internal/database"
)

func migrateCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply or roll back database migrations",
	}
	cmd.AddCommand(
		migrateDirectionCommand("up", "apply all pending migrations", database.Up, logger),
		migrateDirectionCommand("down", "roll back every migration", database.Down, logger),
	)
	return cmd
}

func migrateDirectionCommand(use, short string, dir database.Direction, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrations(cmd.Context(), dir, logger)
		},
	}
}

func runMigrations(ctx context.Context, dir database.Direction, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	return database.Migrate(ctx, pool, dir, logger)
}
