package scraper

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobhound/internal/models"
)

func TestPlanner_Order(t *testing.T) {
	p := NewPlanner(0, []string{"jobs.ch"})
	seq, err := p.Plan(models.SearchCriteria{
		Keywords:   []string{"go", "rust"},
		Locations:  []string{"Genève", "Lyon"},
		RemoteOK:   true,
		Exclusions: []string{"stage", "-alternance"},
	})
	require.NoError(t, err)

	want := []string{
		`"go" "Genève" -stage -alternance`,
		`site:jobs.ch "go" "Genève" -stage -alternance`,
		`"go" "Lyon" -stage -alternance`,
		`site:jobs.ch "go" "Lyon" -stage -alternance`,
		`"go" remote -stage -alternance`,
		`"rust" "Genève" -stage -alternance`,
		`site:jobs.ch "rust" "Genève" -stage -alternance`,
		`"rust" "Lyon" -stage -alternance`,
		`site:jobs.ch "rust" "Lyon" -stage -alternance`,
		`"rust" remote -stage -alternance`,
	}
	assert.Equal(t, want, slices.Collect(seq))
	assert.Equal(t, 10, Count(seq), "the sequence replays")
}

func TestPlanner_Truncates(t *testing.T) {
	p := NewPlanner(3, []string{"indeed.fr", "jobs.ch"})
	seq, err := p.Plan(models.SearchCriteria{Keywords: []string{"go"}, Locations: []string{"Paris", "Lyon"}})
	require.NoError(t, err)

	assert.Equal(t, []string{
		`"go" "Paris"`,
		`site:indeed.fr "go" "Paris"`,
		`site:jobs.ch "go" "Paris"`,
	}, slices.Collect(seq))
}

func TestPlanner_EarlyBreak(t *testing.T) {
	p := NewPlanner(0, nil)
	seq, err := p.Plan(models.SearchCriteria{Keywords: []string{"a", "b"}, Locations: []string{"x", "y"}})
	require.NoError(t, err)

	var got []string
	for q := range seq {
		got = append(got, q)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{`"a" "x"`, `"a" "y"`}, got)
}

func TestPlanner_SkipsBlankEntries(t *testing.T) {
	p := NewPlanner(0, nil)
	seq, err := p.Plan(models.SearchCriteria{Keywords: []string{" ", `go "dev"`}, Locations: []string{"Paris", ""}})
	require.NoError(t, err)
	assert.Equal(t, []string{`"go dev" "Paris"`}, slices.Collect(seq))
}

func TestPlanner_InvalidCriteria(t *testing.T) {
	tests := []struct {
		name     string
		criteria models.SearchCriteria
		field    string
	}{
		{"no keywords", models.SearchCriteria{Locations: []string{"Paris"}}, "search.keywords"},
		{"no locations", models.SearchCriteria{Keywords: []string{"go"}}, "search.locations"},
		{"negative salary", models.SearchCriteria{Keywords: []string{"go"}, Locations: []string{"Paris"}, SalaryMin: -1}, "search.salary"},
		{"inverted salary", models.SearchCriteria{Keywords: []string{"go"}, Locations: []string{"Paris"}, SalaryMin: 90000, SalaryMax: 50000}, "search.salary_min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlanner(0, nil).Plan(tt.criteria)
			var cfgErr *models.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
