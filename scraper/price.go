package scraper

import (
	"regexp"
	"shop-scraper/models"
	"strconv"
	"strings"
)

var priceToken = regexp.MustCompile(`\d[\d.,]*`)

// NormalizePrice reads the first amount in a raw price string such as
// "EUR 1.234,56", "ab 12,99 €" or "12.99" and renders it as "1234,56€".
// Input that cannot be read unambiguously yields models.PriceNotAvailable.
// Normalizing an already normalized price returns it unchanged.
func NormalizePrice(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, models.PriceNotAvailable) {
		return models.PriceNotAvailable
	}

	token := strings.TrimRight(priceToken.FindString(raw), ".,")
	if token == "" {
		return models.PriceNotAvailable
	}

	whole, frac, ok := splitAmount(token)
	if !ok {
		return models.PriceNotAvailable
	}
	return formatAmount(whole, frac)
}

// FormatPriceValue renders a numeric amount, e.g. from a JSON payload.
func FormatPriceValue(v float64) string {
	if v < 0 {
		return models.PriceNotAvailable
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")
	return formatAmount(whole, frac)
}

// PriceValue parses a normalized price back into a number.
func PriceValue(price string) (float64, bool) {
	if price == models.PriceNotAvailable {
		return 0, false
	}
	s := strings.TrimSuffix(strings.TrimSpace(price), "€")
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// splitAmount separates a numeric token into whole and fractional digits.
// German notation wins when a single separator is ambiguous: "1.234" is a
// thousand, "1,234" is rejected.
func splitAmount(token string) (whole, frac string, ok bool) {
	lastDot := strings.LastIndexByte(token, '.')
	lastComma := strings.LastIndexByte(token, ',')

	switch {
	case lastDot < 0 && lastComma < 0:
		whole = token

	case lastDot >= 0 && lastComma >= 0:
		decimal, thousands := byte(','), byte('.')
		idx := lastComma
		if lastDot > lastComma {
			decimal, thousands, idx = '.', ',', lastDot
		}
		if strings.Count(token, string(decimal)) > 1 {
			return "", "", false
		}
		whole, frac = token[:idx], token[idx+1:]
		if !validGroups(whole, thousands) {
			return "", "", false
		}
		whole = strings.ReplaceAll(whole, string(thousands), "")

	default:
		sep, idx := byte('.'), lastDot
		if lastComma >= 0 {
			sep, idx = ',', lastComma
		}
		tail := token[idx+1:]
		switch {
		case strings.Count(token, string(sep)) == 1 && len(tail) <= 2:
			whole, frac = token[:idx], tail
		case sep == ',' && strings.Count(token, ",") == 1:
			return "", "", false
		case validGroups(token, sep):
			whole = strings.ReplaceAll(token, string(sep), "")
		default:
			return "", "", false
		}
	}

	if len(frac) > 2 {
		return "", "", false
	}
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	return whole, frac, true
}

func validGroups(s string, sep byte) bool {
	groups := strings.Split(s, string(sep))
	if len(groups[0]) == 0 || (len(groups[0]) > 3 && len(groups) > 1) {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

func formatAmount(whole, frac string) string {
	for len(frac) < 2 {
		frac += "0"
	}
	return whole + "," + frac + "€"
}
