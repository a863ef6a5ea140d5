package bog

import (
	"regexp"
	"strings"
)

// LabelRule maps a free-text currency label to an ISO code.
type LabelRule struct {
	Pattern *regexp.Regexp
	Code    string
}

func rule(pattern, code string) LabelRule {
	return LabelRule{Pattern: regexp.MustCompile(`(?i)` + pattern), Code: code}
}

// DefaultLabelRules is matched top to bottom and the first hit wins, so
// qualified dollar names sit above the plain "dollar" rule.
var DefaultLabelRules = []LabelRule{
	rule(`\bCAD\b|canad`, "CAD"),
	rule(`\bAUD\b|austral`, "AUD"),
	rule(`\bHKD\b|hong\s*kong`, "HKD"),
	rule(`\bSGD\b|singapore`, "SGD"),
	rule(`\bNZD\b|new\s+zealand`, "NZD"),
	rule(`\bUSD\b|US\s*\$|dollar`, "USD"),
	rule(`\bEUR\b|euro`, "EUR"),
	rule(`\bGBP\b|sterling|british\s+pound|^pounds?$`, "GBP"),
	rule(`\bCHF\b|swiss`, "CHF"),
	rule(`\bJPY\b|\byen\b`, "JPY"),
	rule(`\bCNY\b|yuan|renminbi`, "CNY"),
	rule(`\bDKK\b|danish`, "DKK"),
	rule(`\bSEK\b|swedish`, "SEK"),
	rule(`\bNOK\b|norwegian`, "NOK"),
	rule(`\bXOF\b|cfa`, "XOF"),
	rule(`\bNGN\b|naira`, "NGN"),
	rule(`\bZAR\b|\brand\b`, "ZAR"),
	rule(`\bINR\b|rupee`, "INR"),
	rule(`\bAED\b|dirham`, "AED"),
	rule(`\bSAR\b|riyal`, "SAR"),
}

// NormalizeLabel resolves label against rules.
func NormalizeLabel(rules []LabelRule, label string) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}
	for _, r := range rules {
		if r.Pattern.MatchString(label) {
			return r.Code, true
		}
	}
	return "", false
}
