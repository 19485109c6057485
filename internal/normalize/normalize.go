// Package normalize holds the field-level cleanup helpers shared by every
// extraction strategy: price/currency parsing, text whitespace collapsing,
// URL absolutization, and availability inference.
package normalize

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"prodex/internal/types"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	priceTokenRe = regexp.MustCompile(`(?i)((?:₹|rs\.?|rs\s|inr\s|usd\s|eur\s|cad\s|aud\s|£|€|\$)\s*[\d,.]+(?:\.\d{1,2})?)`)
	numberRe     = regexp.MustCompile(`[\d,.]+`)
	intRe        = regexp.MustCompile(`\d+`)
	floatRe      = regexp.MustCompile(`[\d.]+`)
)

// CleanText collapses runs of whitespace and trims. Returns "" for empty input.
func CleanText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// AbsoluteURL resolves href against base. Returns href unchanged when either
// side fails to parse.
func AbsoluteURL(base, href string) string {
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// PriceFromText scans free text for the first currency-prefixed amount,
// e.g. "₹1,299" or "$ 19.99". Used when price selectors miss.
func PriceFromText(text string) string {
	if text == "" {
		return ""
	}
	return priceTokenRe.FindString(strings.TrimSpace(text))
}

// ParsePrice extracts a numeric amount and an ISO currency code from a raw
// price string. Commas are thousands separators; the first contiguous
// numeric run wins. Either return value may be zero when undetectable.
func ParsePrice(raw string) (price *float64, currency string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ""
	}
	currency = DetectCurrency(raw)

	num := numberRe.FindString(raw)
	if num == "" {
		return nil, currency
	}
	num = strings.ReplaceAll(num, ",", "")
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return nil, currency
	}
	return &f, currency
}

// DetectCurrency maps symbols and keywords to an ISO code. Rupee notations
// are checked first since "rs" collides with nothing else we accept.
func DetectCurrency(raw string) string {
	lowered := strings.ToLower(raw)
	switch {
	case strings.Contains(raw, "₹"), strings.Contains(lowered, "rs"), strings.Contains(lowered, "inr"):
		return "INR"
	case strings.Contains(raw, "$"), strings.Contains(lowered, "usd"):
		return "USD"
	case strings.Contains(raw, "€"), strings.Contains(lowered, "eur"):
		return "EUR"
	case strings.Contains(raw, "£"), strings.Contains(lowered, "gbp"):
		return "GBP"
	case strings.Contains(lowered, "cad"):
		return "CAD"
	case strings.Contains(lowered, "aud"):
		return "AUD"
	}
	return ""
}

// FormatPrice renders an amount with a currency symbol/keyword such that
// ParsePrice round-trips it. Used by tests and the run summary.
func FormatPrice(amount float64, currency string) string {
	num := strconv.FormatFloat(amount, 'f', 2, 64)
	switch currency {
	case "INR":
		return "₹" + num
	case "USD":
		return "$" + num
	case "EUR":
		return "€" + num
	case "GBP":
		return "£" + num
	case "CAD":
		return "cad " + num
	case "AUD":
		return "aud " + num
	}
	return num
}

// ParseInt pulls the first integer run out of raw ("1,234 reviews" → 1234 is
// NOT performed; the original keeps the first bare run, so "1,234" → 1).
func ParseInt(raw string) *int {
	m := intRe.FindString(raw)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

// ParseFloat pulls the first decimal run out of raw ("4.3 out of 5" → 4.3).
func ParseFloat(raw string) *float64 {
	m := floatRe.FindString(raw)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &f
}

// InferInStock maps availability text to a tri-state bool. Handles both
// human phrasing and schema.org URL values (https://schema.org/InStock).
func InferInStock(availability string) *bool {
	if availability == "" {
		return nil
	}
	t := strings.ToLower(availability)
	yes := true
	no := false
	for _, k := range []string{"in stock", "instock", "available", "availabilityinstock"} {
		if strings.Contains(t, k) {
			// "unavailable" contains "available"
			if k == "available" && strings.Contains(t, "unavailable") {
				continue
			}
			return &yes
		}
	}
	for _, k := range []string{"out of stock", "outofstock", "unavailable"} {
		if strings.Contains(t, k) {
			return &no
		}
	}
	return nil
}

// ClampPrice bounds a price to [0, MaxPrice] rounded to 2 decimals.
// Negative prices are treated as unparsed.
func ClampPrice(price *float64) *float64 {
	if price == nil {
		return nil
	}
	p := *price
	if p < 0 {
		return nil
	}
	if p > types.MaxPrice {
		p = types.MaxPrice
	}
	p = math.Round(p*100) / 100
	return &p
}

// ClampRating bounds a rating to [0, MaxRating] rounded to 2 decimals.
func ClampRating(rating *float64) *float64 {
	if rating == nil {
		return nil
	}
	r := *rating
	if r < 0 {
		r = 0
	} else if r > types.MaxRating {
		r = types.MaxRating
	}
	r = math.Round(r*100) / 100
	return &r
}

// ClampReviews coerces a review count to a non-negative int, nil if negative.
func ClampReviews(reviews *int) *int {
	if reviews == nil || *reviews < 0 {
		return nil
	}
	return reviews
}

// TruncateDescription enforces the description column limit.
func TruncateDescription(desc string) string {
	return truncateRunes(desc, types.MaxDescriptionLen)
}

// TruncateError enforces the error_message column limit.
func TruncateError(msg string) string {
	return truncateRunes(msg, types.MaxErrorMessageLen)
}

// truncateRunes cuts at a character boundary. Byte slicing can split a
// multibyte rune and Postgres rejects the resulting invalid UTF-8.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
