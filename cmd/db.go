package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/penf-live/pkg/db"
	"github.com/otherjamesbrown/penf-live/pkg/storage"
)

// NewDbCommand creates the 'db' command group.
func NewDbCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the mirror database schema",
		Long: `Manage the schema of the Postgres item mirror.

The migrations are compiled into the binary and tracked in the
schema_migrations table. 'serve' applies pending migrations at startup; these
commands let you inspect or apply them ahead of time.

The connection comes from database.url in the config file,
PENF_LIVE_DATABASE_URL, or the PENF_LIVE_DB_* variables.

Examples:
  penf-live db status
  penf-live db migrate --dry-run
  penf-live db migrate --yes`,
		Aliases: []string{"database", "migrations"},
	}

	cmd.AddCommand(newDbMigrateCommand(deps))
	cmd.AddCommand(newDbStatusCommand(deps))
	return cmd
}

func newDbMigrateCommand(deps *Deps) *cobra.Command {
	var (
		dryRun bool
		target string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending mirror migrations.

Pending migrations are listed before anything is applied. Each runs in its own
transaction; on failure it is rolled back and no further migrations run.

Flags:
  --dry-run   Show what would be applied without executing
  --target    Apply migrations up to and including this version (e.g., 002)
  --yes       Do not ask for confirmation`,
		Example: `  penf-live db migrate
  penf-live db migrate --dry-run
  penf-live db migrate --target 002 --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runDbMigrate(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), deps, dryRun, target, yes)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be applied without executing")
	cmd.Flags().StringVarP(&target, "target", "t", "", "Target version to migrate to (e.g., 002)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply without confirmation")
	return cmd
}

func newDbStatusCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show database migration status",
		Long: `Show applied and pending migrations, and any drift: migrations recorded
as applied that this binary does not contain.`,
		Example: `  penf-live db status
  penf-live db status --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := deps.config()
			if err != nil {
				return err
			}
			pool, err := deps.ConnectToDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			status, err := db.GetMigrationStatus(ctx, pool, storage.Migrations())
			if err != nil {
				return fmt.Errorf("getting migration status: %w", err)
			}
			return output(cmd.OutOrStdout(), cfg.OutputFormat, status, func(w io.Writer) error {
				return printMigrationStatus(w, status)
			})
		},
	}
}

func runDbMigrate(ctx context.Context, in io.Reader, w io.Writer, deps *Deps, dryRun bool, target string, yes bool) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrations := storage.Migrations()
	status, err := db.GetMigrationStatus(ctx, pool, migrations)
	if err != nil {
		return fmt.Errorf("getting pending migrations: %w", err)
	}
	if len(status.Pending) == 0 {
		fmt.Fprintln(w, "No pending migrations.")
		return nil
	}

	fmt.Fprintf(w, "Pending migrations (%d):\n", len(status.Pending))
	for _, m := range status.Pending {
		fmt.Fprintf(w, "  %s - %s\n", m.Version, m.Name)
	}
	fmt.Fprintln(w)

	if dryRun {
		fmt.Fprintln(w, "Dry run mode: no migrations applied.")
		return nil
	}

	if !yes {
		fmt.Fprint(w, "Apply these migrations? (y/N): ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(response)) != "y" {
			fmt.Fprintln(w, "Migration cancelled.")
			return nil
		}
	}

	var result *db.MigrationResult
	if target != "" {
		fmt.Fprintf(w, "Applying migrations up to version %s...\n", target)
		result, err = db.RunMigrationsToTarget(ctx, pool, migrations, target)
	} else {
		fmt.Fprintln(w, "Applying all pending migrations...")
		result, err = db.RunMigrations(ctx, pool, migrations)
	}

	if err != nil {
		fmt.Fprintf(w, "\nMigration failed: %v\n", err)
		if result != nil && len(result.Applied) > 0 {
			fmt.Fprintln(w, "\nSuccessfully applied before failure:")
			for _, v := range result.Applied {
				fmt.Fprintf(w, "  + %s\n", v)
			}
		}
		return err
	}

	fmt.Fprintln(w)
	if len(result.Applied) > 0 {
		fmt.Fprintf(w, "Successfully applied %d migration(s):\n", len(result.Applied))
		for _, v := range result.Applied {
			fmt.Fprintf(w, "  + %s\n", v)
		}
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(w, "\nSkipped %d migration(s) (already applied):\n", len(result.Skipped))
		for _, v := range result.Skipped {
			fmt.Fprintf(w, "  - %s\n", v)
		}
	}
	return nil
}

// printMigrationStatus formats migration status for terminal display.
func printMigrationStatus(w io.Writer, status *db.MigrationStatus) error {
	if len(status.Applied) == 0 && len(status.Pending) == 0 && len(status.Drift) == 0 {
		_, err := fmt.Fprintln(w, "No migrations found.")
		return err
	}

	section := func(title string, entries []db.MigrationStatusEntry) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(w, "%s (%d):\n", title, len(entries))
		for _, m := range entries {
			appliedAt := "-"
			if m.AppliedAt != nil {
				appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "  %-10s %-33s %s\n", truncate(m.Version, 10), truncate(m.Name, 33), appliedAt)
		}
		fmt.Fprintln(w)
	}
	section("Applied Migrations", status.Applied)
	section("Pending Migrations", status.Pending)
	section("Drift - applied but not in this build", status.Drift)

	fmt.Fprintf(w, "Summary: %d applied, %d pending", len(status.Applied), len(status.Pending))
	if len(status.Drift) > 0 {
		fmt.Fprintf(w, ", %d drift", len(status.Drift))
	}
	fmt.Fprintln(w)
	return nil
}
