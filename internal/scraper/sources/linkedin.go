package sources

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobhound/internal/models"
)

// NewLinkedIn extracts the public (logged-out) LinkedIn job view.
func NewLinkedIn() Extractor {
	return &selectorExtractor{
		name: "linkedin",
		sel: selectors{
			title:       []string{"h1.top-card-layout__title", "h1.topcard__title", "h1"},
			company:     []string{"a.topcard__org-name-link", "span.topcard__flavor a", ".top-card-layout__second-subline a"},
			location:    []string{"span.topcard__flavor--bullet", ".top-card-layout__second-subline .topcard__flavor--bullet"},
			description: []string{"div.show-more-less-html__markup", "div.description__text"},
			contract:    []string{".description__job-criteria-item:nth-child(2) .description__job-criteria-text"},
		},
		post: linkedInTitle,
	}
}

// Logged-out pages often only carry "Company hiring Title in Location | LinkedIn".
func linkedInTitle(doc *goquery.Document, p *models.RawPosting) {
	if p.Title != "" {
		return
	}
	title := firstText(doc, "title")
	if title == "" {
		return
	}
	title = strings.TrimSuffix(title, " | LinkedIn")
	company, rest, ok := strings.Cut(title, " hiring ")
	if !ok {
		p.Title = strings.TrimSpace(title)
		return
	}
	if p.Company == "" {
		p.Company = strings.TrimSpace(company)
	}
	role, where, ok := strings.Cut(rest, " in ")
	p.Title = strings.TrimSpace(role)
	if ok && p.Location == "" {
		p.Location = strings.TrimSpace(where)
	}
}
