package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	internalapp "github.com/boreal-financial/catalog-sync/internal/app"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and exit",
		Long: `Run one sync pass against the configured catalog source and exit.

The command exits non-zero when the pass fails. A failed pass leaves the cache untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}

			return withComponents(cmd, opts, func(ctx context.Context, c *internalapp.Components) error {
				result := c.Manager.PullLiveData(ctx)

				if format == formatJSON {
					if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
						return err
					}
				} else if _, err := fmt.Fprintln(cmd.OutOrStdout(), result.Message); err != nil {
					return err
				}

				if !result.Success {
					return errors.New(result.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
