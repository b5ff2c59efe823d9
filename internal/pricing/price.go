package pricing

import (
	"regexp"
	"strconv"
	"strings"
)

// PriceFragment is the structured result of parsing one price-like string.
// Value is nil when the text carried no usable number.
type PriceFragment struct {
	Raw          string   `json:"raw"`
	Value        *float64 `json:"value"`
	CurrencyHint *string  `json:"currency_hint"`
}

// DiscountKind distinguishes percentage reductions from absolute amounts.
type DiscountKind string

const (
	Percent  DiscountKind = "percent"
	Absolute DiscountKind = "absolute"
)

// DiscountFragment is one parsed coupon/discount hint.
type DiscountFragment struct {
	Kind         DiscountKind `json:"kind"`
	Value        float64      `json:"value"`
	CurrencyHint *string      `json:"currency_hint,omitempty"`
}

var (
	currencyRe = regexp.MustCompile(`(?i)(€|EUR|\$|USD|£|GBP|¥|JPY)`)
	percentRe  = regexp.MustCompile(`(\d{1,3}(?:[.,]\d+)?)\s*%`)
	amountRe   = regexp.MustCompile(`(?i)(€|EUR|\$|USD|£|GBP|¥|JPY)?\s*([0-9][0-9.,]*)`)
	numericRe  = regexp.MustCompile(`[^0-9,.\-]`)
)

var currencyCodes = map[string]string{
	"€": "EUR", "EUR": "EUR",
	"$": "USD", "USD": "USD",
	"£": "GBP", "GBP": "GBP",
	"¥": "JPY", "JPY": "JPY",
}

func currencyCode(sym string) *string {
	code, ok := currencyCodes[strings.ToUpper(strings.TrimSpace(sym))]
	if !ok {
		return nil
	}
	return &code
}

// ParsePrice normalises price text like "1.234,56 €" or "$1,234.56" into a
// PriceFragment. Separator handling: a comma-only number is read with a
// decimal comma; when both separators appear the rightmost one is the
// decimal point. Unparseable input yields Value == nil, never an error.
func ParsePrice(text string) PriceFragment {
	frag := PriceFragment{Raw: strings.TrimSpace(text)}
	if frag.Raw == "" {
		return frag
	}
	if m := currencyRe.FindString(frag.Raw); m != "" {
		frag.CurrencyHint = currencyCode(m)
	}

	num := strings.TrimSpace(numericRe.ReplaceAllString(frag.Raw, ""))
	if num == "" {
		return frag
	}
	if v, ok := normalizeSeparators(num); ok {
		frag.Value = &v
	}
	return frag
}

// normalizeSeparators reduces a digit string with mixed EU/US separators to a
// plain decimal and parses it.
func normalizeSeparators(num string) (float64, bool) {
	hasComma := strings.Contains(num, ",")
	hasDot := strings.Contains(num, ".")

	var std string
	switch {
	case hasComma && hasDot:
		// rightmost separator is the decimal point
		if strings.LastIndex(num, ",") > strings.LastIndex(num, ".") {
			std = strings.ReplaceAll(num, ".", "")
			std = strings.Replace(std, ",", ".", 1)
		} else {
			std = strings.ReplaceAll(num, ",", "")
		}
	case hasComma:
		// decimal comma; any extra commas are grouping
		head, tail, _ := cutLast(num, ",")
		std = strings.ReplaceAll(head, ",", "") + "." + tail
	default:
		std = num
	}

	v, err := strconv.ParseFloat(std, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// ParseDiscount reads one coupon/discount hint such as "10% Coupon" or
// "5 € Rabatt". A percentage match wins over an absolute amount. The second
// return value is false when the text carried neither.
func ParseDiscount(text string) (DiscountFragment, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return DiscountFragment{}, false
	}

	if m := percentRe.FindStringSubmatch(t); m != nil {
		raw := strings.Replace(m[1], ",", ".", 1)
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return DiscountFragment{Kind: Percent, Value: v}, true
		}
	}

	if m := amountRe.FindStringSubmatch(t); m != nil {
		if v, ok := normalizeSeparators(m[2]); ok {
			// the symbol may trail the amount ("5 € Coupon"), so the hint
			// comes from a scan over the whole text, as in ParsePrice
			var hint *string
			if sym := currencyRe.FindString(t); sym != "" {
				hint = currencyCode(sym)
			}
			return DiscountFragment{Kind: Absolute, Value: v, CurrencyHint: hint}, true
		}
	}

	return DiscountFragment{}, false
}
