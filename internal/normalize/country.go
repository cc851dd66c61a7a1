package normalize

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
)

// NormalizeCountry resolves the heterogeneous geography field.
//
// Arrays resolve to CA when any element is Canadian, otherwise US. Strings
// resolve to CA when they contain "ca" in any case ("CA", "Canada"). Everything else
// defaults to US.
func NormalizeCountry(geography gjson.Result) catalog.Country {
	switch {
	case geography.IsArray():
		for _, el := range geography.Array() {
			if el.Type == gjson.String && isCanada(el.Str) {
				return catalog.CountryCA
			}
		}
		return catalog.CountryUS
	case geography.Type == gjson.String:
		if isCanada(geography.Str) {
			return catalog.CountryCA
		}
		return catalog.CountryUS
	default:
		return catalog.CountryUS
	}
}

func isCanada(s string) bool {
	return strings.Contains(strings.ToUpper(s), "CA")
}
