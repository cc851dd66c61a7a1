package filtering

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/config"
)

func testProducts() []catalog.Product {
	return []catalog.Product{
		{ID: "acme-loc", LenderName: "Acme Bank", Category: catalog.CategoryLineOfCredit},
		{ID: "acme-sba", LenderName: "Acme Bank", Category: catalog.CategorySBALoan},
		{ID: "north-term", LenderName: "Northern Capital", Category: catalog.CategoryTermLoan},
		{ID: "sandbox", LenderName: "Sandbox Lender", Category: catalog.CategoryOther},
	}
}

func ids(products []catalog.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func TestDefaultFilterService_ApplyFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		filter  *config.FilterConfig
		want    []string
		wantErr string
	}{
		{
			name: "nil filter keeps everything",
			want: []string{"acme-loc", "acme-sba", "north-term", "sandbox"},
		},
		{
			name: "empty filter keeps everything",
			filter: &config.FilterConfig{
				Lenders: &config.NameFilterConfig{},
			},
			want: []string{"acme-loc", "acme-sba", "north-term", "sandbox"},
		},
		{
			name: "lender exclude",
			filter: &config.FilterConfig{
				Lenders: &config.NameFilterConfig{Exclude: []string{"Sandbox*"}},
			},
			want: []string{"acme-loc", "acme-sba", "north-term"},
		},
		{
			name: "lender include and category exclude",
			filter: &config.FilterConfig{
				Lenders:    &config.NameFilterConfig{Include: []string{"Acme*"}},
				Categories: &config.NameFilterConfig{Exclude: []string{"sba_loan"}},
			},
			want: []string{"acme-loc"},
		},
		{
			name: "category include",
			filter: &config.FilterConfig{
				Categories: &config.NameFilterConfig{Include: []string{"term_loan", "other"}},
			},
			want: []string{"north-term", "sandbox"},
		},
		{
			name: "unknown category",
			filter: &config.FilterConfig{
				Categories: &config.NameFilterConfig{Include: []string{"mortgage"}},
			},
			wantErr: "unknown category 'mortgage'",
		},
		{
			name: "invalid glob",
			filter: &config.FilterConfig{
				Lenders: &config.NameFilterConfig{Include: []string{"[oops"}},
			},
			wantErr: "lenders.include",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := NewDefaultFilterService()
			got, err := svc.ApplyFilters(context.Background(), testProducts(), tt.filter)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

type denyAllNames struct{}

func (denyAllNames) ShouldInclude(string, []string, []string) (bool, string) {
	return false, "denied"
}

func TestNewFilterService_CustomFilters(t *testing.T) {
	t.Parallel()

	svc := NewFilterService(denyAllNames{}, NewDefaultCategoryFilter())
	got, err := svc.ApplyFilters(context.Background(), testProducts(), &config.FilterConfig{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
