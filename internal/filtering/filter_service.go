package filtering

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
	"github.com/boreal-financial/catalog-sync/internal/config"
)

//go:generate mockgen -destination=mocks/mock_filter_service.go -package=mocks -source=filter_service.go FilterService

// FilterService coordinates lender and category filtering
type FilterService interface {
	// ApplyFilters returns the products that pass every configured filter, in input order
	ApplyFilters(ctx context.Context, products []catalog.Product, filter *config.FilterConfig) ([]catalog.Product, error)
}

// defaultFilterService implements filtering coordination using name and category filters
type defaultFilterService struct {
	nameFilter     NameFilter
	categoryFilter CategoryFilter
}

// NewDefaultFilterService creates a new defaultFilterService with default filter implementations
func NewDefaultFilterService() FilterService {
	return &defaultFilterService{
		nameFilter:     NewDefaultNameFilter(),
		categoryFilter: NewDefaultCategoryFilter(),
	}
}

// NewFilterService creates a new defaultFilterService with custom filter implementations
func NewFilterService(nameFilter NameFilter, categoryFilter CategoryFilter) FilterService {
	return &defaultFilterService{
		nameFilter:     nameFilter,
		categoryFilter: categoryFilter,
	}
}

// ValidateFilter reports invalid glob patterns and unknown categories
func ValidateFilter(filter *config.FilterConfig) error {
	if filter == nil {
		return nil
	}
	if filter.Lenders != nil {
		if _, err := CompilePatterns(filter.Lenders.Include); err != nil {
			return fmt.Errorf("lenders.include: %w", err)
		}
		if _, err := CompilePatterns(filter.Lenders.Exclude); err != nil {
			return fmt.Errorf("lenders.exclude: %w", err)
		}
	}
	if filter.Categories != nil {
		for _, list := range [][]string{filter.Categories.Include, filter.Categories.Exclude} {
			for _, c := range list {
				if !catalog.Category(c).Valid() {
					return fmt.Errorf("categories: unknown category '%s'", c)
				}
			}
		}
	}
	return nil
}

// ApplyFilters filters products by lender name, then by category.
// A nil filter returns the input unchanged.
func (s *defaultFilterService) ApplyFilters(
	ctx context.Context,
	products []catalog.Product,
	filter *config.FilterConfig,
) ([]catalog.Product, error) {
	if filter == nil {
		return products, nil
	}
	if err := ValidateFilter(filter); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	var lenderInclude, lenderExclude, categoryInclude, categoryExclude []string
	if filter.Lenders != nil {
		lenderInclude = filter.Lenders.Include
		lenderExclude = filter.Lenders.Exclude
	}
	if filter.Categories != nil {
		categoryInclude = filter.Categories.Include
		categoryExclude = filter.Categories.Exclude
	}

	kept := make([]catalog.Product, 0, len(products))
	for _, p := range products {
		included, reason := s.nameFilter.ShouldInclude(p.LenderName, lenderInclude, lenderExclude)
		if included {
			included, reason = s.categoryFilter.ShouldInclude(p.Category, categoryInclude, categoryExclude)
		}
		if !included {
			slog.DebugContext(ctx, "Excluding product",
				"id", p.ID,
				"lender", p.LenderName,
				"category", p.Category,
				"reason", reason)
			continue
		}
		kept = append(kept, p)
	}

	slog.InfoContext(ctx, "Product filtering completed",
		"included_products", len(kept),
		"excluded_products", len(products)-len(kept))

	return kept, nil
}
