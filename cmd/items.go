package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
	"github.com/otherjamesbrown/penf-live/pkg/storage"
)

// NewItemsCommand creates the 'items' command group.
func NewItemsCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect mirrored items",
		Long: `Inspect the items of a session as recorded in the database mirror.

The mirror follows the live session: confirmed, dismissed, edited and removed
items are reflected once the corresponding write lands.

Examples:
  penf-live items list --session 3f1c...
  penf-live items list --session 3f1c... --category action_item
  penf-live items list --session 3f1c... --all --output yaml`,
	}

	cmd.AddCommand(newItemsListCommand(deps))
	return cmd
}

func newItemsListCommand(deps *Deps) *cobra.Command {
	var (
		sessionID string
		category  string
		status    string
		all       bool
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a session's items",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := storage.ItemQuery{SessionID: sessionID, IncludeDismissed: all, Limit: limit}
			if category != "" {
				c, err := phrases.ParseCategory(category)
				if err != nil {
					return err
				}
				q.Category = c
			}
			if status != "" {
				st, err := live.ParseStatus(status)
				if err != nil {
					return err
				}
				q.Status = st
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, pool, repo, err := openRepository(ctx, deps)
			if err != nil {
				return err
			}
			defer pool.Close()

			items, err := repo.ListItems(ctx, q)
			if err != nil {
				return fmt.Errorf("listing items: %w", err)
			}
			return output(cmd.OutOrStdout(), cfg.OutputFormat, items, func(w io.Writer) error {
				return printItems(w, items)
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID (required)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only this category")
	cmd.Flags().StringVar(&status, "status", "", "Only this status (pending, confirmed, dismissed)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include dismissed items")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of items (0 = no limit)")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}
