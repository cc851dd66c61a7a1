package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// leadingNumber matches the numeric prefix of a string, the way a lenient
// float parser would read "50000 USD" as 50000.
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// parseFloat coerces a JSON value to a float. Currency symbols, thousands
// separators and trailing units are tolerated.
func parseFloat(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return finite(v.Num)
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		s = strings.NewReplacer("$", "", ",", "", "_", "", " ", "").Replace(s)
		m := leadingNumber.FindString(s)
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// amount resolves a required amount field: unparseable or negative values become 0
func (a accessor) amount(raw gjson.Result) float64 {
	v, ok := a.lookup(raw)
	if !ok {
		return 0
	}
	f, ok := parseFloat(v)
	if !ok || f < 0 {
		return 0
	}
	return f
}

// optionalFloat resolves an optional numeric field. Zero is treated as unset.
func (a accessor) optionalFloat(raw gjson.Result) *float64 {
	v, ok := a.lookup(raw)
	if !ok {
		return nil
	}
	f, ok := parseFloat(v)
	if !ok || f == 0 {
		return nil
	}
	return &f
}

// optionalInt resolves an optional integer field, truncating fractions
func (a accessor) optionalInt(raw gjson.Result) *int {
	v, ok := a.lookup(raw)
	if !ok {
		return nil
	}
	f, ok := parseFloat(v)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return nil
	}
	i := int(f)
	if i == 0 {
		return nil
	}
	return &i
}
