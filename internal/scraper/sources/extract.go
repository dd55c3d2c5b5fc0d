package sources

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobhound/internal/models"
)

var reWhitespace = regexp.MustCompile(`\s+`)

// selectors lists CSS selectors per field, tried in order.
type selectors struct {
	title       []string
	company     []string
	location    []string
	salary      []string
	description []string
	contract    []string
}

// selectorExtractor is the common shape of the site extractors: structured data
// first, then CSS selectors for whatever is still missing.
type selectorExtractor struct {
	name string
	sel  selectors
	// post runs after the selectors, for site quirks.
	post func(doc *goquery.Document, p *models.RawPosting)
}

func (e *selectorExtractor) Name() string { return e.name }

func (e *selectorExtractor) Extract(page Page) (*models.RawPosting, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, &models.ExtractionError{URL: page.URL, Extractor: e.name, Reason: err.Error()}
	}

	p := jobPostingFromJSONLD(doc)
	if p == nil {
		p = &models.RawPosting{}
	}
	fill(&p.Title, doc, e.sel.title)
	fill(&p.Company, doc, e.sel.company)
	fill(&p.Location, doc, e.sel.location)
	fill(&p.SalaryText, doc, e.sel.salary)
	fill(&p.Description, doc, e.sel.description)
	fill(&p.ContractType, doc, e.sel.contract)
	if e.post != nil {
		e.post(doc, p)
	}

	if p.Title == "" {
		return nil, &models.ExtractionError{URL: page.URL, Extractor: e.name, Reason: "missing title"}
	}
	return p, nil
}

func fill(dst *string, doc *goquery.Document, sels []string) {
	if *dst != "" {
		return
	}
	*dst = firstText(doc, sels...)
}

// firstText returns the text of the first selector that matches something non-empty.
func firstText(doc *goquery.Document, sels ...string) string {
	for _, sel := range sels {
		if sel == "title" {
			if t := clean(doc.Find("head title").First().Text()); t != "" {
				return t
			}
			continue
		}
		if t := clean(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func clean(s string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
}

// stripTitleSuffix drops " - Site" and " | Site" tails from document titles.
func stripTitleSuffix(title string) string {
	for _, sep := range []string{" - ", " | ", " – "} {
		if i := strings.Index(title, sep); i > 0 {
			title = title[:i]
		}
	}
	return strings.TrimSpace(title)
}

// htmlText renders an HTML fragment to plain text.
func htmlText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return clean(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return clean(fragment)
	}
	return clean(doc.Text())
}

// jobPostingFromJSONLD reads the first schema.org JobPosting embedded in the page.
func jobPostingFromJSONLD(doc *goquery.Document) *models.RawPosting {
	var found *models.RawPosting
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return true
		}
		if obj := findJobPosting(v); obj != nil {
			found = postingFromLD(obj)
			return false
		}
		return true
	})
	return found
}

func findJobPosting(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if obj := findJobPosting(item); obj != nil {
				return obj
			}
		}
	case map[string]any:
		if hasType(t["@type"], "JobPosting") {
			return t
		}
		if graph, ok := t["@graph"]; ok {
			return findJobPosting(graph)
		}
	}
	return nil
}

func hasType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func postingFromLD(obj map[string]any) *models.RawPosting {
	p := &models.RawPosting{
		Title:        clean(str(obj["title"])),
		Description:  htmlText(str(obj["description"])),
		ContractType: contractFromLD(obj["employmentType"]),
	}
	if org, ok := obj["hiringOrganization"].(map[string]any); ok {
		p.Company = clean(str(org["name"]))
	} else {
		p.Company = clean(str(obj["hiringOrganization"]))
	}
	p.Location = locationFromLD(obj["jobLocation"])
	if p.Location == "" && strings.EqualFold(str(obj["jobLocationType"]), "TELECOMMUTE") {
		p.Location = "Remote"
	}
	p.SalaryText = salaryFromLD(obj["baseSalary"])
	return p
}

func locationFromLD(v any) string {
	switch t := v.(type) {
	case []any:
		var parts []string
		for _, item := range t {
			if loc := locationFromLD(item); loc != "" {
				parts = append(parts, loc)
			}
		}
		return strings.Join(parts, " / ")
	case map[string]any:
		addr, ok := t["address"].(map[string]any)
		if !ok {
			return clean(str(t["address"]))
		}
		var parts []string
		for _, k := range []string{"addressLocality", "addressRegion", "addressCountry"} {
			val := addr[k]
			if country, ok := val.(map[string]any); ok {
				val = country["name"]
			}
			if s := clean(str(val)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func salaryFromLD(v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	currency := str(obj["currency"])
	value, ok := obj["value"].(map[string]any)
	if !ok {
		if n := num(obj["value"]); n != "" {
			return strings.TrimSpace(n + " " + currency)
		}
		return ""
	}
	unit := ""
	if strings.EqualFold(str(value["unitText"]), "MONTH") {
		unit = " per month"
	}
	lo, hi := num(value["minValue"]), num(value["maxValue"])
	switch {
	case lo != "" && hi != "":
		return strings.TrimSpace(fmt.Sprintf("%s - %s %s%s", lo, hi, currency, unit))
	case num(value["value"]) != "":
		return strings.TrimSpace(num(value["value"]) + " " + currency + unit)
	case lo != "":
		return strings.TrimSpace(lo + " " + currency + unit)
	}
	return ""
}

func contractFromLD(v any) string {
	var raw string
	switch t := v.(type) {
	case string:
		raw = t
	case []any:
		if len(t) > 0 {
			raw = str(t[0])
		}
	}
	switch strings.ToUpper(strings.ReplaceAll(raw, "-", "_")) {
	case "FULL_TIME":
		return models.JobTypeFullTime
	case "PART_TIME":
		return models.JobTypePartTime
	case "CONTRACTOR", "TEMPORARY":
		return models.JobTypeContract
	case "FREELANCE":
		return models.JobTypeFreelance
	}
	return strings.ToLower(raw)
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return num(t)
	}
	return ""
}

func num(v any) string {
	switch t := v.(type) {
	case float64:
		return fmt.Sprintf("%.0f", t)
	case string:
		return strings.TrimSpace(t)
	}
	return ""
}
