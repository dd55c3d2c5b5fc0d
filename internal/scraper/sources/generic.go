package sources

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"jobhound/internal/models"
)

var (
	companyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[Cc]hez[ \t]+(\p{Lu}[\p{L}\p{N}&.'-]*(?:[ \t]+\p{Lu}[\p{L}\p{N}&.'-]*){0,3})`),
		regexp.MustCompile(`\b(\p{Lu}[\p{L}\p{N}&.'-]*(?:[ \t]+\p{Lu}[\p{L}\p{N}&.'-]*){0,3})[ \t]+recrute\b`),
		regexp.MustCompile(`(?i)\b(?:entreprise|company|employer|employeur)[ \t]*:[ \t]*([^\n|]{2,60})`),
	}
	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:lieu|localisation|location|workplace|arbeitsort)[ \t]*:[ \t]*([^\n|]{2,60})`),
	}
	salaryPattern = regexp.MustCompile(`(?i)\b(?:salaire|salary|r[ée]mun[ée]ration|lohn)[ \t]*:[ \t]*([^\n|]{2,60})`)
)

type generic struct{}

// NewGeneric is the fallback for hosts without a registry entry.
func NewGeneric() Extractor { return generic{} }

func (generic) Name() string { return "generic" }

func (generic) Extract(page Page) (*models.RawPosting, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, &models.ExtractionError{URL: page.URL, Extractor: "generic", Reason: err.Error()}
	}

	p := jobPostingFromJSONLD(doc)
	if p == nil {
		p = &models.RawPosting{}
	}

	if p.Title == "" {
		p.Title = firstText(doc, "h1")
	}
	if p.Title == "" {
		p.Title = stripTitleSuffix(firstText(doc, "title"))
	}
	if p.Title == "" {
		return nil, &models.ExtractionError{URL: page.URL, Extractor: "generic", Reason: "missing title"}
	}

	// Text of the body with one line per block, so the label patterns stop at line ends.
	doc.Find("script, style, noscript").Remove()
	doc.Find("br, p, div, li, h1, h2, h3, h4, tr, dd, dt").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	text := doc.Find("body").Text()

	if p.Company == "" {
		p.Company = matchFirst(companyPatterns, text)
	}
	if p.Location == "" {
		p.Location = matchFirst(locationPatterns, text)
	}
	if p.SalaryText == "" {
		if m := salaryPattern.FindStringSubmatch(text); m != nil {
			p.SalaryText = clean(m[1])
		}
	}
	if p.Description == "" {
		p.Description = articleText(page)
	}
	return p, nil
}

func matchFirst(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if s := strings.Trim(clean(m[1]), " .,;"); s != "" {
				return s
			}
		}
	}
	return ""
}

// articleText extracts the main content block, the way a reader view would.
func articleText(page Page) string {
	parsed, err := url.Parse(page.URL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(page.HTML), parsed)
	if err != nil {
		return ""
	}
	return htmlText(article.Content)
}
