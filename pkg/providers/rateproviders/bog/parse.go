package bog

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bher20/ratehub/pkg/providers/shared"
)

// BuySellQuote is one row of the bank's rate table, quoted in the page's
// base currency. Buy is what the bank pays for one unit of the foreign
// currency, Sell is what it charges.
type BuySellQuote struct {
	CurrencyCode string  `json:"currency_code"`
	Buy          float64 `json:"buy"`
	Sell         float64 `json:"sell"`
}

// Layout identifies which table shape produced a parse result.
type Layout int

const (
	LayoutNone Layout = iota
	LayoutSixColumn
	LayoutThreeColumn
)

func (l Layout) String() string {
	switch l {
	case LayoutSixColumn:
		return "six-column"
	case LayoutThreeColumn:
		return "three-column"
	default:
		return "none"
	}
}

// columns locates the cells of interest for one table shape.
type columns struct {
	width int
	label int
	// pair is consulted when the label does not resolve; -1 disables it.
	pair int
	buy  int
	sell int
}

var (
	// date | currency | pair | buying | selling | mid-rate
	sixColumn = columns{width: 6, label: 1, pair: 2, buy: 3, sell: 4}
	// currency | buying | selling
	threeColumn = columns{width: 3, label: 0, pair: -1, buy: 1, sell: 2}
)

// ParseRatesFromHTML parses a bank rates page.
func ParseRatesFromHTML(html string, rules []LabelRule) ([]BuySellQuote, Layout, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, LayoutNone, fmt.Errorf("parse html: %w", err)
	}
	quotes, layout := ParseTable(doc, rules)
	return quotes, layout, nil
}

// ParseTable tries the six-column layout first and, when no row parses,
// reads the same document with the three-column layout.
func ParseTable(doc *goquery.Document, rules []LabelRule) ([]BuySellQuote, Layout) {
	if quotes := parseRows(doc, sixColumn, rules); len(quotes) > 0 {
		return quotes, LayoutSixColumn
	}
	if quotes := parseRows(doc, threeColumn, rules); len(quotes) > 0 {
		return quotes, LayoutThreeColumn
	}
	return nil, LayoutNone
}

func parseRows(doc *goquery.Document, cols columns, rules []LabelRule) []BuySellQuote {
	var out []BuySellQuote
	seen := make(map[string]bool)

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() != cols.width {
			return
		}
		text := func(i int) string {
			return strings.TrimSpace(cells.Eq(i).Text())
		}

		code, ok := NormalizeLabel(rules, text(cols.label))
		if !ok && cols.pair >= 0 {
			code, ok = NormalizeLabel(rules, text(cols.pair))
		}
		if !ok || seen[code] {
			return
		}

		buy, okBuy := shared.ParseAmount(text(cols.buy))
		sell, okSell := shared.ParseAmount(text(cols.sell))
		if !okBuy || !okSell || !shared.UsableRate(buy) || !shared.UsableRate(sell) {
			return
		}

		seen[code] = true
		out = append(out, BuySellQuote{CurrencyCode: code, Buy: buy, Sell: sell})
	})
	return out
}
