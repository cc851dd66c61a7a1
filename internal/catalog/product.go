package catalog

import (
	"sort"
	"time"
)

// Category is one of the closed set of financing categories
type Category string

const (
	// CategoryTermLoan is a fixed-term loan
	CategoryTermLoan Category = "term_loan"
	// CategoryEquipmentFinancing finances equipment purchases
	CategoryEquipmentFinancing Category = "equipment_financing"
	// CategoryLineOfCredit is a revolving line of credit
	CategoryLineOfCredit Category = "line_of_credit"
	// CategoryInvoiceFactoring advances cash against receivables
	CategoryInvoiceFactoring Category = "invoice_factoring"
	// CategoryWorkingCapital is short-term working capital
	CategoryWorkingCapital Category = "working_capital"
	// CategoryPurchaseOrderFinancing finances supplier purchase orders
	CategoryPurchaseOrderFinancing Category = "purchase_order_financing"
	// CategoryAssetBasedLending is lending secured by business assets
	CategoryAssetBasedLending Category = "asset_based_lending"
	// CategorySBALoan is an SBA-backed loan
	CategorySBALoan Category = "sba_loan"
	// CategoryOther is used for anything not recognized
	CategoryOther Category = "other"
)

// Categories lists every valid category in display order
var Categories = []Category{
	CategoryTermLoan,
	CategoryEquipmentFinancing,
	CategoryLineOfCredit,
	CategoryInvoiceFactoring,
	CategoryWorkingCapital,
	CategoryPurchaseOrderFinancing,
	CategoryAssetBasedLending,
	CategorySBALoan,
	CategoryOther,
}

// Valid reports whether c is one of the enumerated categories
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Country is the market a product is offered in
type Country string

const (
	// CountryUS is the United States
	CountryUS Country = "US"
	// CountryCA is Canada
	CountryCA Country = "CA"
)

// Valid reports whether c is a supported country
func (c Country) Valid() bool {
	return c == CountryUS || c == CountryCA
}

// Product is the normalized, locally cached form of one lender financing offer
type Product struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	LenderName      string   `json:"lenderName"`
	Category        Category `json:"category"`
	Country         Country  `json:"country"`
	MinAmount       float64  `json:"minAmount"`
	MaxAmount       float64  `json:"maxAmount"`
	InterestRateMin *float64 `json:"interestRateMin,omitempty"`
	InterestRateMax *float64 `json:"interestRateMax,omitempty"`
	TermMin         *int     `json:"termMin,omitempty"`
	TermMax         *int     `json:"termMax,omitempty"`
	Description     string   `json:"description,omitempty"`
	VideoURL        string   `json:"videoUrl,omitempty"`

	// LastSynced is the epoch-millisecond timestamp of the sync pass that wrote this record
	LastSynced int64 `json:"lastSynced"`
}

// SyncedAt returns LastSynced as a time.Time
func (p *Product) SyncedAt() time.Time {
	return time.UnixMilli(p.LastSynced)
}

// SortByID orders products by id so that two reads of the same generation compare equal
func SortByID(products []Product) {
	sort.Slice(products, func(i, j int) bool {
		return products[i].ID < products[j].ID
	})
}

// CountByCategory returns the number of products per category
func CountByCategory(products []Product) map[Category]int {
	counts := make(map[Category]int)
	for _, p := range products {
		counts[p.Category]++
	}
	return counts
}
