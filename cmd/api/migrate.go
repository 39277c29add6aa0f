package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/pkordes/tripcrew/backend/migrations"
)

// newMigrateCmd applies or rolls back the embedded migrations. It needs only
// DATABASE_URL, so it runs before the rest of the configuration exists.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withProvider(func(p *goose.Provider, log *slog.Logger) error {
					results, err := p.Up(cmd.Context())
					for _, r := range results {
						log.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withProvider(func(p *goose.Provider, log *slog.Logger) error {
					r, err := p.Down(cmd.Context())
					if r != nil {
						log.Info("migration rolled back", "version", r.Source.Version)
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withProvider(func(p *goose.Provider, log *slog.Logger) error {
					statuses, err := p.Status(cmd.Context())
					for _, s := range statuses {
						log.Info("migration", "version", s.Source.Version, "state", string(s.State))
					}
					return err
				})
			},
		},
	)
	return cmd
}

func withProvider(fn func(*goose.Provider, *slog.Logger) error) error {
	logger := newLogger(os.Getenv("LOG_LEVEL"))
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("required environment variables not set: DATABASE_URL")
	}

	// goose needs database/sql, not a pgx pool.
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}
	return fn(provider, logger)
}
