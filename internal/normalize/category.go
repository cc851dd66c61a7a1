package normalize

import (
	"regexp"
	"strings"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
)

var separators = regexp.MustCompile(`[\s\-/]+`)

// categoryAliases maps underscore-joined lower-case spellings to the closed category set
var categoryAliases = map[string]catalog.Category{
	"term_loan":  catalog.CategoryTermLoan,
	"term_loans": catalog.CategoryTermLoan,
	"term":       catalog.CategoryTermLoan,

	"equipment_financing": catalog.CategoryEquipmentFinancing,
	"equipment_finance":   catalog.CategoryEquipmentFinancing,
	"equipment_loan":      catalog.CategoryEquipmentFinancing,
	"equipment_leasing":   catalog.CategoryEquipmentFinancing,
	"equipment":           catalog.CategoryEquipmentFinancing,

	"line_of_credit":          catalog.CategoryLineOfCredit,
	"lines_of_credit":         catalog.CategoryLineOfCredit,
	"business_line_of_credit": catalog.CategoryLineOfCredit,
	"loc":                     catalog.CategoryLineOfCredit,

	"invoice_factoring": catalog.CategoryInvoiceFactoring,
	"factoring":         catalog.CategoryInvoiceFactoring,
	"invoice_financing": catalog.CategoryInvoiceFactoring,

	"working_capital":      catalog.CategoryWorkingCapital,
	"working_capital_loan": catalog.CategoryWorkingCapital,

	"purchase_order_financing": catalog.CategoryPurchaseOrderFinancing,
	"purchase_order_finance":   catalog.CategoryPurchaseOrderFinancing,
	"po_financing":             catalog.CategoryPurchaseOrderFinancing,

	"asset_based_lending": catalog.CategoryAssetBasedLending,
	"asset_based_loan":    catalog.CategoryAssetBasedLending,
	"abl":                 catalog.CategoryAssetBasedLending,

	"sba_loan":  catalog.CategorySBALoan,
	"sba_loans": catalog.CategorySBALoan,
	"sba":       catalog.CategorySBALoan,
}

// NormalizeCategory lower-cases and underscore-joins raw, then maps it through
// the alias table. Anything unrecognized becomes catalog.CategoryOther.
func NormalizeCategory(raw string) catalog.Category {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return catalog.CategoryOther
	}
	key = separators.ReplaceAllString(key, "_")
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return catalog.CategoryOther
}
