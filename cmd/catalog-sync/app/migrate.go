package app

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/boreal-financial/catalog-sync/database"
	"github.com/boreal-financial/catalog-sync/internal/config"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Database migration tool for the PostgreSQL cache schema. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending database migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd, opts, true)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert database migrations",
			Long: `Revert database migrations.
WARNING: Reverting the first migration drops the product cache.

Examples:
  # Migrate down by 1 step
  catalog-sync migrate down --config config.yaml --num-steps 1 --yes`,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd, opts, false)
			},
		},
	)
	return cmd
}

func runMigrate(cmd *cobra.Command, opts *rootOptions, up bool) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Storage.Type != config.StorageTypePostgres || cfg.Storage.Postgres == nil {
		return fmt.Errorf("migrations require storage type %s, got %q", config.StorageTypePostgres, cfg.Storage.Type)
	}

	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps > math.MaxInt32 {
		return fmt.Errorf("num-steps is too large: %d", numSteps)
	}

	direction := "apply"
	if !up {
		direction = "revert"
	}
	if !yes {
		pg := cfg.Storage.Postgres
		prompt := fmt.Sprintf("About to %s migrations on %s@%s:%d/%s. Continue? (yes/no): ",
			direction, pg.User, pg.Host, pg.Port, pg.Database)
		confirmed, err := confirm(cmd, prompt)
		if err != nil {
			return err
		}
		if !confirmed {
			slog.Info("Migration cancelled by user")
			return nil
		}
	}

	connString, err := cfg.Storage.Postgres.GetConnectionString()
	if err != nil {
		return fmt.Errorf("failed to build connection string: %w", err)
	}

	if numSteps == 0 {
		if up {
			err = database.MigrateUp(connString)
		} else {
			err = database.MigrateDown(connString)
		}
		if err != nil {
			return err
		}
	} else if err := migrateSteps(connString, up, int(numSteps)); err != nil {
		return err
	}

	slog.Info("Migrations finished", "direction", direction, "steps", numSteps)
	return nil
}

// migrateSteps moves the schema n migrations up or down
func migrateSteps(connString string, up bool, n int) (err error) {
	m, err := database.NewMigrator(connString)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	if !up {
		n = -n
	}
	if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("Database has no migrations applied")
	case err != nil:
		slog.Warn("Unable to get migration version", "error", err)
	case dirty:
		slog.Warn("Database is in a dirty state", "version", version)
	default:
		slog.Info("Current migration version", "version", version)
	}
	return nil
}

// confirm asks prompt on the command's output and reads a yes/no answer from its input
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	if _, err := fmt.Fprint(cmd.OutOrStdout(), prompt); err != nil {
		return false, err
	}
	var response string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &response); err != nil {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "yes" || response == "y", nil
}
