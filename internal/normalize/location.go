package normalize

import (
	"regexp"
	"strings"
)

var (
	reParenthetical = regexp.MustCompile(`\([^)]*\)`)
	rePostalCode    = regexp.MustCompile(`\b\d{4,5}\b`)
	reLocationSep   = regexp.MustCompile(`\s*[,/;|]\s*|\s+-\s+`)
)

// defaultAliases maps folded spellings to the canonical place name used for matching.
var defaultAliases = map[string]string{
	"geneve":          "geneve",
	"geneva":          "geneve",
	"genf":            "geneve",
	"ginevra":         "geneve",
	"lausanne":        "lausanne",
	"zurich":          "zurich",
	"zuerich":         "zurich",
	"berne":           "bern",
	"bern":            "bern",
	"fribourg":        "fribourg",
	"freiburg":        "fribourg",
	"neuchatel":       "neuchatel",
	"canton de vaud":  "vaud",
	"vaud":            "vaud",
	"suisse":          "switzerland",
	"schweiz":         "switzerland",
	"svizzera":        "switzerland",
	"switzerland":     "switzerland",
	"ch":              "switzerland",
	"france":          "france",
	"fr":              "france",
	"paris":           "paris",
	"ile-de-france":   "paris",
	"lille":           "lille",
	"lyon":            "lyon",
	"hauts-de-france": "hauts-de-france",
	"remote":          "remote",
	"full remote":     "remote",
	"teletravail":     "remote",
	"work from home":  "remote",
	"anywhere":        "remote",
	"worldwide":       "remote",
}

// CanonicalLocation folds a free-text location into the form used for matching.
func (n *Normalizer) CanonicalLocation(text string) string {
	aliases := n.aliases
	if aliases == nil {
		aliases = defaultAliases
	}

	s := reParenthetical.ReplaceAllString(text, " ")
	s = rePostalCode.ReplaceAllString(s, " ")
	s = Fold(s)
	if s == "" {
		return ""
	}

	var parts []string
	seen := make(map[string]bool)
	for _, part := range reLocationSep.Split(s, -1) {
		part = strings.Trim(CleanText(part), ".-")
		if part == "" {
			continue
		}
		if canon, ok := aliases[part]; ok {
			part = canon
		}
		if !seen[part] {
			seen[part] = true
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}
