package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/hearthai/hearth/internal/config"
	"github.com/hearthai/hearth/storage/migrations"
)

func buildMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long: `Manage the postgres schema backing hearth's message, schedule, and job
stores. Always run migrations after upgrading hearth when storage.driver
is postgres.`,
	}
	cmd.AddCommand(buildMigrateUpCmd(), buildMigrateDownCmd(), buildMigrateStatusCmd())
	return cmd
}

func openMigrationDB(cfg *config.Config) (*sql.DB, error) {
	if cfg.Storage.Driver != "postgres" {
		return nil, fmt.Errorf("storage.driver is %q; migrations only apply to postgres", cfg.Storage.Driver)
	}
	if strings.TrimSpace(cfg.Storage.DSN) == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	db, err := sql.Open("postgres", cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Storage.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
	}
	if cfg.Storage.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
	}
	if cfg.Storage.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Storage.ConnMaxLifetime)
	}
	return db, nil
}

func newMigrator(cfg *config.Config, db *sql.DB) (*migrations.Migrator, error) {
	var dir fs.FS
	if strings.TrimSpace(cfg.Storage.MigrationsDir) != "" {
		dir = os.DirFS(cfg.Storage.MigrationsDir)
	}
	return migrations.New(db, dir)
}

func buildMigrateUpCmd() *cobra.Command {
	var (
		configPath string
		steps      int
	)
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Run pending migrations",
		Example: `  hearth migrate up
  hearth migrate up --steps 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := openMigrationDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			migrator, err := newMigrator(cfg, db)
			if err != nil {
				return fmt.Errorf("init migrator: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			applied, err := migrator.Up(ctx, steps)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				slog.Info("no pending migrations")
				return nil
			}
			for _, id := range applied {
				slog.Info("applied migration", "id", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "hearth.yaml", "Path to YAML configuration file")
	cmd.Flags().IntVarP(&steps, "steps", "n", 0, "Number of migrations to apply (0 = all)")
	return cmd
}

func buildMigrateDownCmd() *cobra.Command {
	var (
		configPath string
		steps      int
	)
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last N migrations",
		Long:  "Use with caution in production: rolling back may drop columns or tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := openMigrationDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			migrator, err := newMigrator(cfg, db)
			if err != nil {
				return fmt.Errorf("init migrator: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rolled, err := migrator.Down(ctx, steps)
			if err != nil {
				return err
			}
			if len(rolled) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations to roll back.")
				return nil
			}
			for _, id := range rolled {
				slog.Info("rolled back migration", "id", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "hearth.yaml", "Path to config file")
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to roll back")
	return cmd
}

func buildMigrateStatusCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := openMigrationDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			migrator, err := newMigrator(cfg, db)
			if err != nil {
				return fmt.Errorf("init migrator: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			applied, pending, err := migrator.Status(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Applied migrations:")
			if len(applied) == 0 {
				fmt.Fprintln(out, "  (none)")
			}
			for _, a := range applied {
				fmt.Fprintf(out, "  %03d_%s (applied %s)\n", a.Version, a.Name, a.AppliedAt.Format(time.RFC3339))
			}
			fmt.Fprintln(out, "Pending migrations:")
			if len(pending) == 0 {
				fmt.Fprintln(out, "  (none)")
			}
			for _, m := range pending {
				fmt.Fprintf(out, "  %s\n", m.ID())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "hearth.yaml", "Path to config file")
	return cmd
}
