package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/voidcat/grant-discovery/internal/models"
)

var numberRe = regexp.MustCompile(`\d[\d,\.]*`)

// ParseAmount extracts a funding range and currency from free text.
// Returns nil when no usable number is present; callers keep the raw
// string so nothing is lost.
func ParseAmount(text, defaultCurrency string) *models.AmountRange {
	textLower := strings.ToLower(text)

	currency := defaultCurrency
	if currency == "" {
		currency = "USD"
	}
	switch {
	case strings.Contains(text, "£") || strings.Contains(textLower, "gbp") || strings.Contains(textLower, "pound"):
		currency = "GBP"
	case strings.Contains(text, "€") || strings.Contains(textLower, "eur"):
		currency = "EUR"
	case strings.Contains(text, "$") || strings.Contains(textLower, "usd") || strings.Contains(textLower, "dollar"):
		currency = "USD"
	}

	var amounts []float64
	for _, m := range numberRe.FindAllString(text, -1) {
		clean := strings.ReplaceAll(m, ",", "")
		if val, err := strconv.ParseFloat(clean, 64); err == nil && val > 0 {
			amounts = append(amounts, val)
			continue
		}
		// European thousands separator.
		clean = strings.ReplaceAll(m, ".", "")
		if val, err := strconv.ParseFloat(clean, 64); err == nil && val > 0 {
			amounts = append(amounts, val)
		}
	}
	if len(amounts) == 0 {
		return nil
	}

	if len(amounts) == 1 {
		if strings.Contains(textLower, "minimum") || strings.Contains(textLower, "at least") {
			return &models.AmountRange{Min: amounts[0], Currency: currency}
		}
		// "up to X" and bare amounts both read as a ceiling.
		return &models.AmountRange{Max: amounts[0], Currency: currency}
	}

	min, max := amounts[0], amounts[0]
	for _, a := range amounts {
		if a < min {
			min = a
		}
		if a > max {
			max = a
		}
	}
	if min == max {
		return &models.AmountRange{Max: max, Currency: currency}
	}
	return &models.AmountRange{Min: min, Max: max, Currency: currency}
}
