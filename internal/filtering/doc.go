// Package filtering narrows a freshly normalized catalog before it is stored.
//
// Two filters are applied to every product, and a product is kept only when
// it passes both:
//
//   - NameFilter matches the lender name against glob patterns
//     ("Acme*", "*Capital*"), where '*' also matches across '/'.
//   - CategoryFilter matches the normalized category exactly
//     ("line_of_credit", "sba_loan").
//
// Both filters share the same precedence rules:
//
//  1. A match in exclude drops the product, even when include also matches
//  2. With include patterns set, the product must match one of them
//  3. With no patterns set, every product is kept
//
// # Usage Example
//
//	svc := NewDefaultFilterService()
//	kept, err := svc.ApplyFilters(ctx, products, &config.FilterConfig{
//		Lenders: &config.NameFilterConfig{Exclude: []string{"*Sandbox*"}},
//	})
package filtering
