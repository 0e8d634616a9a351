package icd10

import (
	"errors"
)

var (
	ErrNotFound = errors.New("code not found")
	ErrInvalid  = errors.New("invalid icd-10 request")
)

// Hierarchy levels, from the most specific to the broadest.
const (
	LevelSubcategory = "subcategory"
	LevelCategory    = "category"
	LevelGroup       = "group"
	LevelChapter     = "chapter"
)

// lookupOrder is the order in which a code is resolved.
var lookupOrder = []string{LevelSubcategory, LevelCategory, LevelGroup, LevelChapter}

// ValidLevel reports whether level names a hierarchy level.
func ValidLevel(level string) bool {
	for _, l := range lookupOrder {
		if l == level {
			return true
		}
	}
	return false
}

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// Code is one entry of the ICD-10 hierarchy. Level-specific fields are nil
// where they do not apply.
type Code struct {
	Code             string  `json:"code"`
	Level            string  `json:"level"`
	Description      string  `json:"description"`
	DescriptionShort *string `json:"description_short,omitempty"`
	ParentCode       *string `json:"parent_code,omitempty"`
	StartCode        *string `json:"start_code,omitempty"`
	EndCode          *string `json:"end_code,omitempty"`
	Classification   *string `json:"classification,omitempty"`
	RestrictSex      *string `json:"restrict_sex,omitempty"`
	CauseOfDeath     *bool   `json:"cause_of_death,omitempty"`
	Refer            *string `json:"refer,omitempty"`
	Excluded         *string `json:"excluded,omitempty"`
}

// SearchEntry is one row of the normalized search index.
type SearchEntry struct {
	Code        string  `json:"code"`
	Level       string  `json:"level"`
	Description string  `json:"description"`
	ParentCode  *string `json:"parent_code,omitempty"`
	SearchText  string  `json:"-"`
}

// Dataset holds a parsed DATASUS release.
type Dataset struct {
	Chapters      []*Code
	Groups        []*Code
	Categories    []*Code
	Subcategories []*Code
}

// ImportResult reports how many rows each table received.
type ImportResult struct {
	Chapters      int `json:"chapters"`
	Groups        int `json:"groups"`
	Categories    int `json:"categories"`
	Subcategories int `json:"subcategories"`
	SearchEntries int `json:"search_entries"`
}
