package sources

// NewIndeed extracts Indeed job pages (viewjob and rc/clk landing pages).
func NewIndeed() Extractor {
	return &selectorExtractor{
		name: "indeed",
		sel: selectors{
			title:       []string{"h1[data-jk]", "h1.jobsearch-JobInfoHeader-title", `[data-testid="jobsearch-JobInfoHeader-title"]`, "h1"},
			company:     []string{`div[data-testid="inlineHeader-companyName"]`, `[data-company-name="true"]`, "span.companyName"},
			location:    []string{`div[data-testid="job-location"]`, `div[data-testid="inlineHeader-companyLocation"]`, "div.companyLocation"},
			salary:      []string{`span[data-testid="job-compensation"]`, "#salaryInfoAndJobType span", "span.salaryText"},
			description: []string{"#jobDescriptionText", "div.jobsearch-jobDescriptionText"},
		},
	}
}
