package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSalary(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		min, max float64
		currency string
	}{
		{"swiss apostrophe", "45'000 CHF", 45000, 45000, "CHF"},
		{"k range with euro", "45k-55k€", 45000, 55000, "EUR"},
		{"k suffix on upper bound only", "45-55k EUR", 45000, 55000, "EUR"},
		{"typographic apostrophe and en dash", "CHF 100’000–120’000", 100000, 120000, "CHF"},
		{"space thousands", "50 000 € - 60 000 €", 50000, 60000, "EUR"},
		{"comma thousands", "$120,000 to $150,000", 120000, 150000, "USD"},
		{"dot thousands", "55.000 - 65.000 EUR", 55000, 65000, "EUR"},
		{"monthly", "4 500 € par mois", 54000, 54000, "EUR"},
		{"french range word", "40k à 50k", 40000, 50000, ""},
		{"reversed bounds", "90k - 70k", 70000, 90000, ""},
		{"decimal k", "62,5k €", 62500, 62500, "EUR"},
		{"k prefix on lower bound only", "45k-55", 45000, 55000, ""},
		{"year in parentheses", "CHF 95'000 (2024)", 95000, 95000, "CHF"},
		{"starting year", "85'000 CHF, dès 2025", 85000, 85000, "CHF"},
		{"four digit monthly amount", "2000 CHF par mois", 24000, 24000, "CHF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSalary(tt.text)
			require.NotNil(t, got, "ParseSalary(%q) returned nil", tt.text)
			assert.Equal(t, tt.min, got.Min)
			assert.Equal(t, tt.max, got.Max)
			assert.Equal(t, tt.currency, got.Currency)
		})
	}
}

func TestParseSalary_Unparsable(t *testing.T) {
	for _, text := range []string{"", "Competitive", "Selon profil", "100% remote", "3 years experience"} {
		assert.Nil(t, ParseSalary(text), "ParseSalary(%q)", text)
	}
}
