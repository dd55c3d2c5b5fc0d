// Package scoring computes the deterministic compatibility score between a
// normalized job and a user's profile and search criteria.
package scoring

import (
	"math"
	"slices"
	"strings"

	"jobhound/internal/models"
	"jobhound/internal/normalize"
)

// Component weights. They sum to 1.
const (
	WeightSkills   = 0.40
	WeightSalary   = 0.30
	WeightLocation = 0.20
	WeightRemote   = 0.10
)

const (
	// NeutralSalaryScore is used when either side has no usable salary data.
	NeutralSalaryScore = 50.0
	// PartialLocationScore is awarded when one canonical location contains the other.
	PartialLocationScore = 60.0
	// DefaultSalaryTolerance is the width of the band beyond the desired range,
	// as a fraction of the desired maximum, in which the salary score decays linearly.
	DefaultSalaryTolerance = 0.10
)

// Engine scores jobs. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	tolerance  float64
	normalizer *normalize.Normalizer
}

// NewEngine creates an engine. A negative tolerance falls back to DefaultSalaryTolerance.
// The normalizer canonicalizes criteria locations the same way job locations were.
func NewEngine(salaryTolerance float64, n *normalize.Normalizer) *Engine {
	if salaryTolerance < 0 {
		salaryTolerance = DefaultSalaryTolerance
	}
	if n == nil {
		n = normalize.New(nil)
	}
	return &Engine{tolerance: salaryTolerance, normalizer: n}
}

// Score computes the ScoredJob for a (job, profile, criteria) triple.
func (e *Engine) Score(job models.NormalizedJob, profile models.UserProfile, criteria models.SearchCriteria) models.ScoredJob {
	sub := models.Subscores{
		Skills:   SkillsScore(job, profile),
		Salary:   SalaryScore(job.Salary, criteria.SalaryMin, criteria.SalaryMax, e.tolerance),
		Location: e.LocationScore(job.CanonicalLocation, criteria.Locations),
		Remote:   RemoteScore(job.Remote, criteria.RemoteOK),
	}

	total := sub.Skills*WeightSkills +
		sub.Salary*WeightSalary +
		sub.Location*WeightLocation +
		sub.Remote*WeightRemote

	return models.ScoredJob{
		NormalizedJob: job,
		MatchScore:    clamp(round1(total)),
		Subscores:     sub,
	}
}

// SkillsScore is the share of profile skills mentioned in the title or description.
func SkillsScore(job models.NormalizedJob, profile models.UserProfile) float64 {
	if len(profile.Skills) == 0 {
		return 0
	}
	text := strings.ToLower(job.Title + " " + job.Description)
	matched := 0
	for _, skill := range profile.Skills {
		skill = strings.ToLower(strings.TrimSpace(skill))
		if skill != "" && strings.Contains(text, skill) {
			matched++
		}
	}
	return math.Min(100, float64(matched)/float64(len(profile.Skills))*100)
}

// SalaryScore compares a job's salary range with the desired [min,max].
// A zero max means the desired range is open-ended.
func SalaryScore(salary *models.SalaryRange, desiredMin, desiredMax, tolerance float64) float64 {
	if salary == nil || (desiredMin <= 0 && desiredMax <= 0) {
		return NeutralSalaryScore
	}
	lo, hi := desiredMin, desiredMax
	if hi <= 0 {
		hi = math.Inf(1)
	}

	if salary.Min >= lo && salary.Max <= hi {
		return 100
	}

	width := salary.Max - salary.Min
	if width > 0 {
		overlap := math.Min(salary.Max, hi) - math.Max(salary.Min, lo)
		if overlap > 0 {
			return round1(100 * overlap / width)
		}
	}

	var gap float64
	if salary.Max < lo {
		gap = lo - salary.Max
	} else {
		gap = salary.Min - hi
	}
	reference := desiredMax
	if reference <= 0 {
		reference = desiredMin
	}
	band := tolerance * reference
	if band <= 0 || gap >= band {
		return 0
	}
	return round1(100 * (1 - gap/band))
}

// LocationScore matches a canonical job location against the desired locations.
func (e *Engine) LocationScore(canonical string, desired []string) float64 {
	if canonical == "" {
		return 0
	}
	parts := strings.Split(canonical, ", ")
	best := 0.0
	for _, loc := range desired {
		want := e.normalizer.CanonicalLocation(loc)
		if want == "" {
			continue
		}
		if want == canonical || slices.Contains(parts, want) {
			return 100
		}
		if strings.Contains(canonical, want) || strings.Contains(want, canonical) {
			best = PartialLocationScore
		}
	}
	return best
}

// RemoteScore only rewards remote postings when the user accepts remote work.
func RemoteScore(remote, remoteOK bool) float64 {
	if remoteOK && remote {
		return 100
	}
	return 0
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
