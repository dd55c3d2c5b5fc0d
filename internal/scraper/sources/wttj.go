package sources

// NewWTTJ extracts Welcome to the Jungle job pages.
func NewWTTJ() Extractor {
	return &selectorExtractor{
		name: "wttj",
		sel: selectors{
			title:       []string{`h1[data-testid="job-title"]`, `h2[data-testid="job-title"]`, "h1"},
			company:     []string{`a[data-testid="company-name"]`, `span[data-testid="company-name"]`},
			location:    []string{`span[data-testid="job-location"]`, `[data-testid="job-metadata-block"] i[name="location"] + span`},
			salary:      []string{`[data-testid="job-metadata-block"] i[name="salary"] + span`},
			description: []string{`div[data-testid="job-description"]`, `div[data-testid="job-section-description"]`},
			contract:    []string{`[data-testid="job-metadata-block"] i[name="contract"] + span`},
		},
	}
}
