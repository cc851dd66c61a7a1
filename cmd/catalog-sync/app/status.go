package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	internalapp "github.com/boreal-financial/catalog-sync/internal/app"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where the served catalog comes from and how the last sync went",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}

			return withComponents(cmd, opts, func(ctx context.Context, c *internalapp.Components) error {
				report, err := c.Manager.Diagnostics(ctx)
				if err != nil {
					return err
				}
				if format == formatJSON {
					return writeJSON(cmd.OutOrStdout(), report)
				}

				w := cmd.OutOrStdout()
				lines := []string{
					fmt.Sprintf("Data source:   %s", report.Label),
					fmt.Sprintf("Products:      %d (%d cached)", report.ProductCount, report.CachedCount),
					fmt.Sprintf("Sync status:   %s", report.SyncStatus),
					fmt.Sprintf("Last sync:     %s", formatTime(report.LastSyncTime)),
					fmt.Sprintf("Last success:  %s", formatTime(report.LastSuccessTime)),
				}
				if report.LastError != "" {
					lines = append(lines, fmt.Sprintf("Last error:    %s", report.LastError))
				}
				for _, line := range lines {
					if _, err := fmt.Fprintln(w, line); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
