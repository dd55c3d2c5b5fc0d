package storage

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"jobhound/internal/models"
)

// applyQuery filters, sorts and pages an in-memory job list. Backends without
// server-side filtering share it.
func applyQuery(jobs []models.ScoredJob, q JobQuery) *JobPage {
	q = q.Normalize()

	matched := make([]models.ScoredJob, 0, len(jobs))
	for _, j := range jobs {
		if matches(j, q) {
			matched = append(matched, j)
		}
	}
	sortJobs(matched, q.Sort)

	page := &JobPage{Page: q.Page, PerPage: q.PerPage, Total: len(matched)}
	start := min(q.Offset(), len(matched))
	end := min(start+q.PerPage, len(matched))
	page.Jobs = matched[start:end]
	return page
}

func matches(j models.ScoredJob, q JobQuery) bool {
	if j.MatchScore < q.MinScore {
		return false
	}
	if q.Source != "" && !strings.EqualFold(j.Source, q.Source) {
		return false
	}
	if q.Location != "" {
		needle := strings.ToLower(q.Location)
		if !strings.Contains(strings.ToLower(j.Location), needle) &&
			!strings.Contains(j.CanonicalLocation, needle) {
			return false
		}
	}
	return true
}

// sortJobs orders by score or discovery date, newest first as the tie breaker.
func sortJobs(jobs []models.ScoredJob, by string) {
	slices.SortStableFunc(jobs, func(a, b models.ScoredJob) int {
		if by == SortByDate {
			if c := b.DiscoveredAt.Compare(a.DiscoveredAt); c != 0 {
				return c
			}
			return cmp.Compare(b.MatchScore, a.MatchScore)
		}
		if c := cmp.Compare(b.MatchScore, a.MatchScore); c != 0 {
			return c
		}
		return b.DiscoveredAt.Compare(a.DiscoveredAt)
	})
}

// jobStats computes JobStats in memory, with the same grouping and ordering as
// the SQLite aggregates: count descending, then name.
func jobStats(jobs []models.ScoredJob) *JobStats {
	st := &JobStats{TotalJobs: len(jobs), TopCompanies: []NamedCount{}, Sources: []NamedCount{}}
	if len(jobs) == 0 {
		return st
	}

	var sum float64
	companies := make(map[string]int)
	sources := make(map[string]int)
	for _, j := range jobs {
		sum += j.MatchScore
		if j.Company != "" {
			companies[j.Company]++
		}
		if j.Source != "" {
			sources[j.Source]++
		}
	}
	st.AverageScore = roundScore(sum / float64(len(jobs)))
	st.UniqueCompanies = len(companies)
	st.UniqueSources = len(sources)
	st.TopCompanies = rankCounts(companies, TopCompaniesLimit)
	st.Sources = rankCounts(sources, 0)
	return st
}

// rankCounts orders groups by count then name; limit <= 0 keeps all of them.
func rankCounts(groups map[string]int, limit int) []NamedCount {
	out := make([]NamedCount, 0, len(groups))
	for name, n := range groups {
		out = append(out, NamedCount{Name: name, Count: n})
	}
	slices.SortFunc(out, func(a, b NamedCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func roundScore(v float64) float64 {
	return math.Round(v*10) / 10
}
