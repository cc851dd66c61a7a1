package normalize

import (
	"strings"

	"github.com/tidwall/gjson"
)

// accessor is an ordered list of JSON paths that may carry the same field
type accessor []string

// Field accessors, in precedence order. Older staff API versions used the
// first spellings; later versions and third-party feeds use the rest.
var (
	idField          = accessor{"id", "productId", "product_id"}
	lenderField      = accessor{"lender", "lenderName", "lender_name", "company", "provider"}
	nameField        = accessor{"product", "productName", "product_name", "name"}
	categoryField    = accessor{"productCategory", "category", "type"}
	geographyField   = accessor{"geography", "country", "countries"}
	minAmountField   = accessor{"minAmountUsd", "minAmount", "min_amount"}
	maxAmountField   = accessor{"maxAmountUsd", "maxAmount", "max_amount"}
	rateMinField     = accessor{"interestRateMin", "rate_min", "interest_rate_min"}
	rateMaxField     = accessor{"interestRateMax", "rate_max", "interest_rate_max"}
	termMinField     = accessor{"termMinMonths", "term_min", "termMin", "min_term"}
	termMaxField     = accessor{"termMaxMonths", "term_max", "termMax", "max_term"}
	descriptionField = accessor{"description"}
	videoField       = accessor{"videoUrl", "video_url", "video"}
)

// lookup returns the first present, non-empty value for the accessor
func (a accessor) lookup(raw gjson.Result) (gjson.Result, bool) {
	if !raw.IsObject() {
		return gjson.Result{}, false
	}
	for _, path := range a {
		v := raw.Get(path)
		if present(v) {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// str resolves the accessor as a trimmed string, or "" when absent
func (a accessor) str(raw gjson.Result) string {
	v, ok := a.lookup(raw)
	if !ok || v.IsObject() || v.IsArray() {
		return ""
	}
	return strings.TrimSpace(v.String())
}

// present reports whether a value counts as set: it exists, is not null and
// is not an empty or whitespace-only string.
func present(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return false
	case gjson.String:
		return strings.TrimSpace(v.Str) != ""
	default:
		return v.Exists()
	}
}
