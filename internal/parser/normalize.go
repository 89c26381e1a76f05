package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	regionTokens = map[string]bool{"US": true, "EU": true, "UK": true}

	// "US9", "EU42.5", "UK8" written without a space
	gluedRegion = regexp.MustCompile(`^(US|EU|UK)(\d)`)

	oneSizeAliases = map[string]bool{"ONE SIZE": true, "ONESIZE": true, "ONE-SIZE": true, "EINHEITSGRÖSSE": true}
)

// OneSize is the canonical form of every one-size label
const OneSize = "ONE SIZE"

// NormalizeSize maps a size notation to its canonical form: upper case, compatibility
// forms folded (full-width digits, ß as SS), region prefixes or suffixes (US, EU, UK)
// dropped and inner whitespace collapsed. "US 9", "us9" and "9 US" all become "9".
// One-size labels such as "Einheitsgröße" become OneSize.
func NormalizeSize(size string) string {
	// Casers keep state and must not be shared between goroutines
	normalized := cases.Upper(language.Und).String(norm.NFKC.String(strings.TrimSpace(size)))
	normalized = gluedRegion.ReplaceAllString(normalized, "$2")

	fields := strings.Fields(normalized)
	if len(fields) > 1 && regionTokens[fields[0]] {
		fields = fields[1:]
	}
	if len(fields) > 1 && regionTokens[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	if len(fields) == 1 && regionTokens[fields[0]] {
		return ""
	}
	joined := strings.Join(fields, " ")
	if oneSizeAliases[joined] {
		return OneSize
	}
	return joined
}

var (
	priceNumber   = regexp.MustCompile(`\d[\d.,\s]*`)
	currencySigns = []string{"$", "€", "£", "¥"}
)

// ParsePrice extracts the amount and currency symbol from a displayed price such as
// "€49,99", "$1,299.00" or "1.299,95 €". The amount is invalid when no number is found.
func ParsePrice(text string) (decimal.NullDecimal, string) {
	currency := ""
	for _, sign := range currencySigns {
		if strings.Contains(text, sign) {
			currency = sign
			break
		}
	}

	raw := strings.TrimSpace(priceNumber.FindString(text))
	raw = strings.ReplaceAll(raw, " ", "")
	raw = strings.TrimRight(raw, ".,")
	if raw == "" {
		return decimal.NullDecimal{}, currency
	}

	amount, err := decimal.NewFromString(canonicalNumber(raw))
	if err != nil {
		return decimal.NullDecimal{}, currency
	}
	return decimal.NewNullDecimal(amount), currency
}

// canonicalNumber resolves thousands and decimal separators into a plain decimal string
func canonicalNumber(raw string) string {
	lastDot := strings.LastIndex(raw, ".")
	lastComma := strings.LastIndex(raw, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			raw = strings.ReplaceAll(raw, ".", "")
			return strings.Replace(raw, ",", ".", 1)
		}
		return strings.ReplaceAll(raw, ",", "")
	case lastComma >= 0:
		if len(raw)-lastComma-1 == 3 {
			return strings.ReplaceAll(raw, ",", "")
		}
		return strings.Replace(raw, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(raw, ".") > 1 {
			return strings.ReplaceAll(raw, ".", "")
		}
	}
	return raw
}
