package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/penf-live/config"
	"github.com/otherjamesbrown/penf-live/pkg/storage"
)

// openRepository connects to the mirror for read commands.
func openRepository(ctx context.Context, deps *Deps) (*config.Config, *pgxpool.Pool, *storage.Repository, error) {
	cfg, err := deps.config()
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.Database.Enabled {
		return nil, nil, nil, errNoDatabase
	}
	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, pool, storage.NewRepository(pool, deps.logger()), nil
}

// NewSessionsCommand creates the 'sessions' command group.
func NewSessionsCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect mirrored sessions",
		Long: `Inspect sessions recorded in the database mirror.

Every session started by 'serve', 'replay' or 'watch' with the database
enabled is recorded with its title, start and end time.

Examples:
  penf-live sessions list
  penf-live sessions list --limit 10 --output json`,
	}

	cmd.AddCommand(newSessionsListCommand(deps))
	return cmd
}

func newSessionsListCommand(deps *Deps) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, pool, repo, err := openRepository(ctx, deps)
			if err != nil {
				return err
			}
			defer pool.Close()

			records, err := repo.ListSessions(ctx, limit)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}
			return output(cmd.OutOrStdout(), cfg.OutputFormat, records, func(w io.Writer) error {
				return printSessionRecords(w, records, time.Now())
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of sessions to list")
	return cmd
}

func printSessionRecords(w io.Writer, records []storage.SessionRecord, now time.Time) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No sessions.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTARTED\tSTATE\tITEMS")
	for _, r := range records {
		state := "open"
		if r.ClosedAt != nil {
			state = "closed " + formatAge(*r.ClosedAt, now)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			r.ID, truncate(r.Title, 40), formatAge(r.CreatedAt, now), state, r.ItemCount)
	}
	return tw.Flush()
}
