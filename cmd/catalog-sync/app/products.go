package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	internalapp "github.com/boreal-financial/catalog-sync/internal/app"
	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/normalize"
)

func newProductsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the cached lender products",
		Long: `List the cached lender products.

When the cache has never been filled the fallback sample catalog is listed instead,
and the output says so.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}
			category, err := cmd.Flags().GetString("category")
			if err != nil {
				return fmt.Errorf("failed to get category flag: %w", err)
			}
			country, err := cmd.Flags().GetString("country")
			if err != nil {
				return fmt.Errorf("failed to get country flag: %w", err)
			}

			return withComponents(cmd, opts, func(ctx context.Context, c *internalapp.Components) error {
				snap, err := c.Manager.Snapshot(ctx)
				if err != nil {
					return err
				}
				products := filterProducts(snap.Products, category, country)

				if format == formatJSON {
					return writeJSON(cmd.OutOrStdout(), products)
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (%d products)\n", snap.Report.Label, len(products)); err != nil {
					return err
				}
				return renderProducts(cmd.OutOrStdout(), products)
			})
		},
	}
	cmd.Flags().String("format", formatTable, "Output format (table or json)")
	cmd.Flags().String("category", "", "Only list products in this category")
	cmd.Flags().String("country", "", "Only list products offered in this country (US or CA)")
	return cmd
}

// filterProducts keeps the products matching the optional category and country
func filterProducts(products []catalog.Product, category, country string) []catalog.Product {
	var wantCategory catalog.Category
	if category != "" {
		wantCategory = normalize.NormalizeCategory(category)
	}
	wantCountry := catalog.Country(strings.ToUpper(strings.TrimSpace(country)))

	out := make([]catalog.Product, 0, len(products))
	for _, p := range products {
		if wantCategory != "" && p.Category != wantCategory {
			continue
		}
		if wantCountry != "" && p.Country != wantCountry {
			continue
		}
		out = append(out, p)
	}
	return out
}

// renderProducts writes products as a table
func renderProducts(w io.Writer, products []catalog.Product) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Lender", "Product", "Category", "Country", "Min", "Max")
	for _, p := range products {
		row := []string{
			p.ID,
			p.LenderName,
			p.Name,
			string(p.Category),
			string(p.Country),
			formatAmount(p.MinAmount),
			formatAmount(p.MaxAmount),
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render products: %w", err)
		}
	}
	return table.Render()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
