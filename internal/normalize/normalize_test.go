package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"jobhound/internal/models"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "geneve", Fold("  Genève "))
	assert.Equal(t, "ingenieur full stack", Fold("Ingénieur   Full Stack"))
	assert.Equal(t, "zurich", Fold("ZÜRICH"))
}

func TestCanonicalLocation(t *testing.T) {
	n := New(map[string]string{"Nyon VD": "nyon"})

	tests := map[string]string{
		"Genève":                  "geneve",
		"Geneva, Switzerland":     "geneve, switzerland",
		"1201 Genève (GE)":        "geneve",
		"Zürich / Schweiz":        "zurich, switzerland",
		"Lille - Hauts-de-France": "lille, hauts-de-france",
		"Télétravail":             "remote",
		"Nyon VD":                 "nyon",
		"":                        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, n.CanonicalLocation(in), "CanonicalLocation(%q)", in)
	}
}

func TestDedupKey_IgnoresCaseAccentsAndPunctuation(t *testing.T) {
	a := DedupKey("Développeur Full-Stack", "ACME SA", "Genève")
	b := DedupKey("developpeur full stack", "Acme, SA", " geneve ")
	c := DedupKey("Developpeur Backend", "ACME SA", "Genève")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("Backend engineer", "Full Remote"))
	assert.True(t, IsRemote("Poste en télétravail partiel"))
	assert.True(t, IsRemote("Travail à distance possible"))
	assert.False(t, IsRemote("On-site in Lausanne", "Lausanne"))
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	raw := models.RawPosting{
		URL:          " https://www.jobs.ch/en/vacancies/detail/1/ ",
		Title:        "  Senior   Go Developer ",
		Company:      "Acme\nSA",
		Location:     "Genève, Suisse",
		SalaryText:   "120'000 - 140'000 CHF",
		Description:  "Remote friendly team using Go and Docker.",
		ContractType: "Full-Time",
		Source:       "jobs.ch",
		DiscoveredAt: now,
	}

	job := New(nil).Normalize(raw)

	assert.Equal(t, "https://www.jobs.ch/en/vacancies/detail/1/", job.URL)
	assert.Equal(t, "Senior Go Developer", job.Title)
	assert.Equal(t, "Acme SA", job.Company)
	assert.Equal(t, "geneve, switzerland", job.CanonicalLocation)
	assert.Equal(t, "full-time", job.ContractType)
	assert.True(t, job.Remote)
	if assert.NotNil(t, job.Salary) {
		assert.Equal(t, 120000.0, job.Salary.Min)
		assert.Equal(t, 140000.0, job.Salary.Max)
	}
	assert.Equal(t, DedupKey("Senior Go Developer", "Acme SA", "Genève, Suisse"), job.DedupKey)
	assert.Equal(t, now, job.DiscoveredAt)
}
