package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"jobhound/internal/models"
)

var (
	// 45'000, 45’000, 45 000, 45.000, 45,000
	reThousands = regexp.MustCompile(`(\d)['’\x{00A0}\x{202F}\x{2009} .,](\d{3})\b`)
	reAmount    = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(k)?`)
	reRangeSep  = regexp.MustCompile(`\s*(?:-|–|—)\s*|\s+(?:to|à|a|bis)\s+`)
	reYear      = regexp.MustCompile(`\b(?:19\d{2}|20\d{2}|2100)\b`)
	reMonthly   = regexp.MustCompile(`/\s*mois|par mois|/\s*month|per month|a month|mensuel|monthly`)

	currencies = []struct{ marker, code string }{
		{"chf", "CHF"}, {"fr.", "CHF"},
		{"€", "EUR"}, {"eur", "EUR"},
		{"$", "USD"}, {"usd", "USD"},
		{"£", "GBP"}, {"gbp", "GBP"},
	}
)

const minPlainSalary = 1000

// ParseSalary extracts a yearly [min,max] range. It returns nil when nothing
// in the text looks like an amount of money.
func ParseSalary(text string) *models.SalaryRange {
	s := strings.ToLower(CleanText(text))
	if s == "" {
		return nil
	}

	s = dropYears(s)

	// Collapse thousands separators; repeat for 1'000'000 style values.
	for i := 0; i < 3; i++ {
		s = reThousands.ReplaceAllString(s, "$1$2")
	}
	s = reRangeSep.ReplaceAllString(s, " - ")

	matches := reAmount.FindAllStringSubmatchIndex(s, -1)
	var values []float64
	var kFlags []bool
	var spans [][2]int
	for _, m := range matches {
		v, err := strconv.ParseFloat(strings.ReplaceAll(s[m[2]:m[3]], ",", "."), 64)
		if err != nil {
			continue
		}
		values = append(values, v)
		kFlags = append(kFlags, m[4] >= 0)
		spans = append(spans, [2]int{m[0], m[1]})
	}
	if len(values) == 0 {
		return nil
	}

	// A k on either end of "45-55k" or "45k-55" applies to both.
	if len(values) >= 2 && strings.TrimSpace(s[spans[0][1]:spans[1][0]]) == "-" {
		switch {
		case kFlags[1] && !kFlags[0] && values[0] < minPlainSalary:
			kFlags[0] = true
		case kFlags[0] && !kFlags[1] && values[1] < minPlainSalary:
			kFlags[1] = true
		}
	}

	var amounts []float64
	for i, v := range values {
		if kFlags[i] {
			v *= 1000
		}
		if v < minPlainSalary {
			continue
		}
		amounts = append(amounts, v)
		if len(amounts) == 2 {
			break
		}
	}
	if len(amounts) == 0 {
		return nil
	}

	r := &models.SalaryRange{Min: amounts[0], Max: amounts[0], Currency: detectCurrency(s)}
	if len(amounts) == 2 {
		r.Max = amounts[1]
	}
	if r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	if reMonthly.MatchString(s) {
		r.Min *= 12
		r.Max *= 12
	}
	return r
}

// dropYears blanks out bare years such as "(2024)" or "dès 2025". A
// four-digit value next to a currency, a k or a thousands group is kept.
func dropYears(s string) string {
	locs := reYear.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	b := []byte(s)
	for _, loc := range locs {
		before := strings.TrimRight(s[:loc[0]], " ")
		after := strings.TrimLeft(s[loc[1]:], " ")
		if hasCurrencySuffix(before) || hasCurrencyPrefix(after) ||
			strings.HasPrefix(after, "k") || reThousands.MatchString(s[loc[0]:min(len(s), loc[1]+6)]) {
			continue
		}
		for i := loc[0]; i < loc[1]; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

func hasCurrencyPrefix(s string) bool {
	for _, c := range currencies {
		if strings.HasPrefix(s, c.marker) {
			return true
		}
	}
	return false
}

func hasCurrencySuffix(s string) bool {
	for _, c := range currencies {
		if strings.HasSuffix(s, c.marker) {
			return true
		}
	}
	return false
}

func detectCurrency(s string) string {
	for _, c := range currencies {
		if strings.Contains(s, c.marker) {
			return c.code
		}
	}
	return ""
}
