package icd10

import (
	"context"
)

// Repository defines the persistence interface for the ICD-10 tables.
type Repository interface {
	// FindCode looks code up in the table of one hierarchy level.
	FindCode(ctx context.Context, level, code string) (*Code, error)
	// Search matches normalized text against the search index. An empty
	// level matches every level.
	Search(ctx context.Context, text, level string, limit int) ([]*SearchEntry, error)
	// Clear empties every ICD-10 table, search index included.
	Clear(ctx context.Context) error
	InsertCodes(ctx context.Context, level string, codes []*Code) (int64, error)
	InsertSearchEntries(ctx context.Context, entries []*SearchEntry) (int64, error)
}
