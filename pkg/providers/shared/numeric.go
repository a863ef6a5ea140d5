package shared

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var amountRe = regexp.MustCompile(`(-?(?:[0-9][0-9,]*(?:\.[0-9]+)?|\.[0-9]+))`)

// ParseFirstFloat finds the first float match in the string using the provided regex.
// The regex must have at least one capture group. Thousands separators are ignored.
func ParseFirstFloat(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseAmount reads a decimal number out of a free-text table cell such as
// "12.10", "GH¢ 1,204.5" or " 0.0831 ". A leading minus is kept so that
// UsableRate can reject the value.
func ParseAmount(s string) (float64, bool) {
	return ParseFirstFloat(amountRe, s)
}

// UsableRate reports whether v can be published as a rate.
func UsableRate(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AsFloat converts a loosely typed JSON value into a float64. Upstream APIs
// are not trusted to keep their number encoding stable.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// NormalizeCode upper-cases and trims a currency code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ExactDecimal keeps the upstream digits when the value arrived as a JSON
// number or string.
func ExactDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	case float64:
		return decimal.NewFromFloat(n), nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected type %T", v)
	}
}
