package expense

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pennyledger/receipt-pipeline/internal/extraction"
)

// NormalizedItem is one cleaned receipt line. All numeric fields are
// finite, quantity is positive, prices are non-negative.
type NormalizedItem struct {
	Name       string
	Quantity   float64
	Unit       string
	UnitPrice  float64
	TotalPrice float64
}

var (
	weightQtyPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(lb|kg|oz|g)\b`)
	slashPricePattern = regexp.MustCompile(`/\s*\$?\s*(\d+(?:\.\d+)?)`)
	atPricePattern    = regexp.MustCompile(`@\s*\$?\s*(\d+(?:\.\d+)?)`)
	numberPattern     = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// NormalizeLineItems cleans the raw structured-extraction items into an
// ordered list with consistent quantity, unit and price fields.
//
// Scale-weighed goods print as two lines: the item itself, then a weight
// detail like "0.69 lb @ 1 lb /0.50" with no item name of its own. Detail
// lines are folded into the preceding item instead of appearing as
// standalone entries. Everything else is coerced to sane defaults, with
// the total backfilled from quantity x unit price or the unit price
// backfilled from total / quantity.
//
// The function is pure: no I/O, no shared state.
func NormalizeLineItems(raw []extraction.Item) []NormalizedItem {
	out := make([]NormalizedItem, 0, len(raw))

	for _, item := range raw {
		text := strings.TrimSpace(item.RawDescription)
		if text == "" {
			text = strings.TrimSpace(item.Description)
		}

		if len(out) > 0 && weightQtyPattern.MatchString(text) {
			if detail, ok := parseWeightDetail(text); ok {
				mergeWeightDetail(&out[len(out)-1], detail)
				continue
			}
		}

		out = append(out, normalizeStandalone(item, text))
	}

	return out
}

// weightDetail is a parsed weight sub-line: the weighed quantity, its
// unit, the per-unit price and, when distinguishable, the line total.
type weightDetail struct {
	quantity     float64
	unit         string
	unitPrice    float64
	lineTotal    float64
	hasLineTotal bool
}

// parseWeightDetail attempts to read a description as a weight detail
// line. ok is false when the text turns out to be a regular item that
// merely mentions a weight unit.
func parseWeightDetail(text string) (weightDetail, bool) {
	// real detail lines always carry a price marker
	if !strings.ContainsAny(text, "@/") {
		return weightDetail{}, false
	}

	var detail weightDetail

	if m := weightQtyPattern.FindStringSubmatch(text); m != nil {
		qty, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return weightDetail{}, false
		}
		detail.quantity = qty
		detail.unit = strings.ToLower(m[2])
	}
	if detail.quantity <= 0 || math.IsInf(detail.quantity, 0) || math.IsNaN(detail.quantity) {
		return weightDetail{}, false
	}

	// unit price: prefer the last "/price", fall back to the first "@price"
	if matches := slashPricePattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		price, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
		if err != nil {
			return weightDetail{}, false
		}
		detail.unitPrice = price
	} else if m := atPricePattern.FindStringSubmatch(text); m != nil {
		price, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return weightDetail{}, false
		}
		detail.unitPrice = price
	} else {
		return weightDetail{}, false
	}

	// The last numeric token is taken as the line total, unless it is just
	// the unit price read back (the common two-number case). The 0.001
	// epsilon and last-token choice are a best-effort heuristic; a detail
	// line with extra numbers can still fool it.
	numbers := numberPattern.FindAllString(text, -1)
	if len(numbers) > 0 {
		if last, err := strconv.ParseFloat(numbers[len(numbers)-1], 64); err == nil {
			if math.Abs(last-detail.unitPrice) > 0.001 {
				detail.lineTotal = last
				detail.hasLineTotal = true
			}
		}
	}

	return detail, true
}

// mergeWeightDetail folds a parsed detail line into the item before it
func mergeWeightDetail(prev *NormalizedItem, detail weightDetail) {
	unit := detail.unit
	if unit == "" {
		unit = prev.Unit
	}
	if unit == "" {
		unit = "ea"
	}

	prev.Quantity = detail.quantity
	prev.Unit = unit
	prev.UnitPrice = detail.unitPrice

	if detail.hasLineTotal {
		prev.TotalPrice = round2(detail.lineTotal)
	} else if prev.TotalPrice == 0 {
		prev.TotalPrice = round2(detail.quantity * detail.unitPrice)
	}
}

// normalizeStandalone coerces a regular item to defaults and backfills
// whichever of total and unit price is missing
func normalizeStandalone(item extraction.Item, text string) NormalizedItem {
	name := strings.TrimSpace(item.Description)
	if name == "" {
		name = text
	}
	if name == "" {
		name = "Unknown Item"
	}

	unit := strings.TrimSpace(item.QuantityUnit)
	if unit == "" {
		unit = "ea"
	}

	quantity := positiveOr(item.Quantity, 1)
	unitPrice := nonNegativeOr(item.UnitPrice)
	totalPrice := nonNegativeOr(item.TotalPrice)

	if totalPrice == 0 && unitPrice > 0 {
		totalPrice = round2(quantity * unitPrice)
	} else if unitPrice == 0 && totalPrice > 0 {
		unitPrice = round2(totalPrice / quantity)
	}

	return NormalizedItem{
		Name:       name,
		Quantity:   quantity,
		Unit:       unit,
		UnitPrice:  unitPrice,
		TotalPrice: totalPrice,
	}
}

func positiveOr(n extraction.Number, fallback float64) float64 {
	v := n.Float()
	if !n.Valid() || v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func nonNegativeOr(n extraction.Number) float64 {
	v := n.Float()
	if !n.Valid() || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
