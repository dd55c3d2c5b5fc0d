// Package normalize turns raw, free-text job postings into canonical records.
package normalize

import (
	"crypto/md5"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"jobhound/internal/models"
)

var (
	reWhitespace  = regexp.MustCompile(`\s+`)
	reNonWordChar = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
)

// Normalizer canonicalizes raw postings. The zero value uses the built-in aliases only.
type Normalizer struct {
	aliases map[string]string
}

// New creates a normalizer with extra location aliases layered over the built-in table.
func New(extraAliases map[string]string) *Normalizer {
	aliases := make(map[string]string, len(defaultAliases)+len(extraAliases))
	for k, v := range defaultAliases {
		aliases[k] = v
	}
	for k, v := range extraAliases {
		aliases[Fold(k)] = Fold(v)
	}
	return &Normalizer{aliases: aliases}
}

// Normalize builds a NormalizedJob from a raw posting.
func (n *Normalizer) Normalize(raw models.RawPosting) models.NormalizedJob {
	raw.URL = strings.TrimSpace(raw.URL)
	raw.Title = CleanText(raw.Title)
	raw.Company = CleanText(raw.Company)
	raw.Location = CleanText(raw.Location)
	raw.SalaryText = CleanText(raw.SalaryText)
	raw.Description = strings.TrimSpace(raw.Description)
	raw.ContractType = strings.ToLower(CleanText(raw.ContractType))

	return models.NormalizedJob{
		RawPosting:        raw,
		Salary:            ParseSalary(raw.SalaryText),
		CanonicalLocation: n.CanonicalLocation(raw.Location),
		DedupKey:          DedupKey(raw.Title, raw.Company, raw.Location),
		Remote:            IsRemote(raw.Title, raw.Location, raw.Description),
	}
}

// CleanText trims and collapses internal whitespace.
func CleanText(s string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
}

// Fold lower-cases, strips diacritics and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return CleanText(strings.ToLower(folded))
}

// KeyPart is the form of a field used inside a dedup key: folded and stripped of punctuation.
func KeyPart(s string) string {
	return CleanText(reNonWordChar.ReplaceAllString(Fold(s), " "))
}

// DedupKey derives the identity shared by postings of the same logical job.
func DedupKey(title, company, location string) string {
	key := fmt.Sprintf("%s|%s|%s", KeyPart(title), KeyPart(company), KeyPart(location))
	return fmt.Sprintf("%x", md5.Sum([]byte(key)))
}

var remoteMarkers = []string{
	"remote", "full remote", "fully remote", "100% remote",
	"teletravail", "tele-travail", "home office", "homeoffice", "a distance",
}

// IsRemote reports whether any of the texts indicates a remote position.
func IsRemote(texts ...string) bool {
	for _, t := range texts {
		folded := Fold(t)
		for _, marker := range remoteMarkers {
			if strings.Contains(folded, marker) {
				return true
			}
		}
	}
	return false
}
