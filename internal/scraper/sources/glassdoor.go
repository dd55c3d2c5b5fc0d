package sources

// NewGlassdoor extracts Glassdoor job listings.
func NewGlassdoor() Extractor {
	return &selectorExtractor{
		name: "glassdoor",
		sel: selectors{
			title:       []string{`div[data-test="job-title"]`, `h1[data-test="job-title"]`, "h2", "h1"},
			company:     []string{`div[data-test="employer-name"]`, `span[data-test="employer-name"]`},
			location:    []string{`div[data-test="job-location"]`, `div[data-test="location"]`},
			salary:      []string{`div[data-test="detailSalary"]`, `span[data-test="detailSalary"]`},
			description: []string{`div[class^="JobDetails_jobDescription"]`, "div.jobDescriptionContent"},
		},
	}
}
