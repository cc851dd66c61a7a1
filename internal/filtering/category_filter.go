package filtering

import (
	"fmt"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
)

// CategoryFilter handles category filtering using exact matching
type CategoryFilter interface {
	// ShouldInclude determines if a product category should be kept based on include/exclude lists
	// Returns (shouldInclude bool, reason string)
	ShouldInclude(category catalog.Category, include, exclude []string) (bool, string)
}

// DefaultCategoryFilter compares the normalized category to each list entry
type DefaultCategoryFilter struct{}

// NewDefaultCategoryFilter creates a new DefaultCategoryFilter
func NewDefaultCategoryFilter() *DefaultCategoryFilter {
	return &DefaultCategoryFilter{}
}

// ShouldInclude determines if a product category should be kept
func (*DefaultCategoryFilter) ShouldInclude(category catalog.Category, include, exclude []string) (bool, string) {
	for _, c := range exclude {
		if catalog.Category(c) == category {
			return false, fmt.Sprintf("excluded by category '%s'", c)
		}
	}

	if len(include) == 0 {
		return true, "no include categories"
	}

	for _, c := range include {
		if catalog.Category(c) == category {
			return true, fmt.Sprintf("included by category '%s'", c)
		}
	}
	return false, fmt.Sprintf("category %s not in include list %v", category, include)
}
