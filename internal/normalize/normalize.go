package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
)

const (
	// UnknownLender is used when a record names no lender
	UnknownLender = "Unknown Lender"
	// UnknownProduct is used when a record names no product
	UnknownProduct = "Unknown Product"
)

var (
	// ErrMissingID is returned by Validate for products that cannot be keyed
	ErrMissingID = errors.New("product id is empty")
	// ErrInvalidCategory is returned by Validate for categories outside the closed set
	ErrInvalidCategory = errors.New("product category is not recognized")
	// ErrInvalidCountry is returned by Validate for unsupported countries
	ErrInvalidCountry = errors.New("product country is not supported")
	// ErrInvalidAmounts is returned by Validate when the amount bounds are negative or inverted
	ErrInvalidAmounts = errors.New("product amount bounds are invalid")
)

var whitespace = regexp.MustCompile(`\s+`)

// Normalize maps one raw record onto a catalog.Product. It never fails:
// missing strings fall back to readable defaults, missing amounts to 0 and
// missing optional fields to nil.
func Normalize(raw gjson.Result, syncedAt time.Time) catalog.Product {
	lender := lenderField.str(raw)
	if lender == "" {
		lender = UnknownLender
	}
	name := nameField.str(raw)
	if name == "" {
		name = UnknownProduct
	}

	geography, _ := geographyField.lookup(raw)

	p := catalog.Product{
		ID:              idField.str(raw),
		Name:            name,
		LenderName:      lender,
		Category:        NormalizeCategory(categoryField.str(raw)),
		Country:         NormalizeCountry(geography),
		MinAmount:       minAmountField.amount(raw),
		MaxAmount:       maxAmountField.amount(raw),
		InterestRateMin: rateMinField.optionalFloat(raw),
		InterestRateMax: rateMaxField.optionalFloat(raw),
		TermMin:         termMinField.optionalInt(raw),
		TermMax:         termMaxField.optionalInt(raw),
		Description:     descriptionField.str(raw),
		VideoURL:        videoField.str(raw),
		LastSynced:      syncedAt.UnixMilli(),
	}
	if p.ID == "" {
		p.ID = DeriveID(lender, name)
	}

	// Keep the bounds ordered even when the source swapped them
	if p.MinAmount > p.MaxAmount {
		p.MinAmount, p.MaxAmount = p.MaxAmount, p.MinAmount
	}
	if p.InterestRateMin != nil && p.InterestRateMax != nil && *p.InterestRateMin > *p.InterestRateMax {
		p.InterestRateMin, p.InterestRateMax = p.InterestRateMax, p.InterestRateMin
	}
	if p.TermMin != nil && p.TermMax != nil && *p.TermMin > *p.TermMax {
		p.TermMin, p.TermMax = p.TermMax, p.TermMin
	}

	return p
}

// NormalizeAll normalizes every record with the same sync timestamp
func NormalizeAll(records []gjson.Result, syncedAt time.Time) []catalog.Product {
	products := make([]catalog.Product, 0, len(records))
	for _, raw := range records {
		products = append(products, Normalize(raw, syncedAt))
	}
	return products
}

// DeriveID builds the stable identifier used when the source omits one:
// "<lender>-<product>" with whitespace runs replaced by "-", lower-cased.
func DeriveID(lender, product string) string {
	return strings.ToLower(whitespace.ReplaceAllString(lender+"-"+product, "-"))
}

// Validate reports whether a product can be written to a cache store
func Validate(p *catalog.Product) error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return ErrMissingID
	case !p.Category.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidCategory, p.Category)
	case !p.Country.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidCountry, p.Country)
	case p.MinAmount < 0 || p.MaxAmount < 0 || p.MinAmount > p.MaxAmount:
		return fmt.Errorf("%w: min=%v max=%v", ErrInvalidAmounts, p.MinAmount, p.MaxAmount)
	}
	return nil
}
