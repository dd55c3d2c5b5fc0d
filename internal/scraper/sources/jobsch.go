package sources

// NewJobsCH extracts jobs.ch vacancies. Most of them embed a JobPosting block,
// the selectors only cover older templates.
func NewJobsCH() Extractor {
	return &selectorExtractor{
		name: "jobsch",
		sel: selectors{
			title:       []string{`h1[data-cy="vacancy-title"]`, "h1"},
			company:     []string{`[data-cy="vacancy-logo"] + div a`, `a[data-cy="company-link"]`},
			location:    []string{`li[data-cy="info-workplace"] span`, `[data-cy="vacancy-info-workplace"]`},
			salary:      []string{`li[data-cy="info-salary"] span`},
			description: []string{`div[data-cy="vacancy-description"]`, "section.vacancy-description"},
			contract:    []string{`li[data-cy="info-contract"] span`},
		},
	}
}
