package icd10

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds text for index matching: lower case, accents removed,
// anything other than [a-z0-9] turned into a single space.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(mapped), " ")
}

// BuildIndex derives the search index from a dataset.
func BuildIndex(ds *Dataset) []*SearchEntry {
	var out []*SearchEntry
	for _, level := range [][]*Code{ds.Chapters, ds.Groups, ds.Categories, ds.Subcategories} {
		for _, c := range level {
			short := ""
			if c.DescriptionShort != nil {
				short = *c.DescriptionShort
			}
			out = append(out, &SearchEntry{
				Code:        c.Code,
				Level:       c.Level,
				Description: c.Description,
				ParentCode:  c.ParentCode,
				SearchText:  strings.TrimSpace(c.Code + " " + Normalize(c.Description) + " " + Normalize(short)),
			})
		}
	}
	return out
}
