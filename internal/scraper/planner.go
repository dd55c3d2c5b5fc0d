package scraper

import (
	"iter"
	"strings"

	"jobhound/internal/models"
)

// Planner turns search criteria into an ordered, bounded sequence of search queries.
type Planner struct {
	maxQueries  int
	siteDomains []string
}

// NewPlanner creates a planner. siteDomains get one site-restricted variant per
// keyword/location pair.
func NewPlanner(maxQueries int, siteDomains []string) *Planner {
	return &Planner{maxQueries: maxQueries, siteDomains: siteDomains}
}

// Plan returns a lazy sequence of queries, keyword-major and location-minor,
// truncated at the query cap. Ranging over it again replays it from the start.
func (p *Planner) Plan(c models.SearchCriteria) (iter.Seq[string], error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c = c.Clone()
	suffix := exclusionSuffix(c.Exclusions)
	limit := p.maxQueries

	return func(yield func(string) bool) {
		emitted := 0
		emit := func(q string) bool {
			if limit > 0 && emitted >= limit {
				return false
			}
			emitted++
			return yield(q + suffix)
		}

		for _, kw := range c.Keywords {
			for _, loc := range c.Locations {
				base := quote(kw) + " " + quote(loc)
				if !emit(base) {
					return
				}
				for _, domain := range p.siteDomains {
					if !emit("site:" + domain + " " + base) {
						return
					}
				}
			}
			if c.RemoteOK {
				if !emit(quote(kw) + " remote") {
					return
				}
			}
		}
	}, nil
}

// Count drains a sequence and returns its length.
func Count(seq iter.Seq[string]) int {
	n := 0
	for range seq {
		n++
	}
	return n
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(strings.TrimSpace(s), `"`, "") + `"`
}

func exclusionSuffix(terms []string) string {
	var b strings.Builder
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		b.WriteByte(' ')
		if !strings.HasPrefix(t, "-") {
			b.WriteByte('-')
		}
		b.WriteString(t)
	}
	return b.String()
}
