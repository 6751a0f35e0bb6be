package collector

import (
	"regexp"
	"strings"

	"github.com/pauljones0/catalog-crawler/internal/models"
)

// DefaultToyTerms mark toy and miniature variants of full-size products.
var DefaultToyTerms = []string{
	"toy", "diecast", "model car", "disney", "1:64", "1:24", "1:43", "scale", "collectible", "action figure",
}

// TermFilter rejects listings whose title or brand mentions one of its terms
// as a whole word (plural allowed), unless the keyword itself mentions one.
type TermFilter struct {
	name    string
	pattern *regexp.Regexp
}

func NewTermFilter(name string, terms []string) *TermFilter {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(t)))
	}
	return &TermFilter{
		name:    name,
		pattern: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)s?\b`),
	}
}

func NewToyFilter() *TermFilter {
	return NewTermFilter("toy", DefaultToyTerms)
}

func (f *TermFilter) Reject(keyword string, l *models.Listing) (string, bool) {
	if f.pattern.MatchString(keyword) {
		return "", false
	}
	for _, field := range []string{l.Title, l.Brand} {
		if m := f.pattern.FindStringSubmatch(field); m != nil {
			return f.name + ":" + strings.ToLower(m[1]), true
		}
	}
	return "", false
}
