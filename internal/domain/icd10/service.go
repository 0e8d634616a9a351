package icd10

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// TxFunc runs fn inside a single database transaction.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo Repository
	tx   TxFunc
}

func NewService(repo Repository, tx TxFunc) *Service {
	return &Service{repo: repo, tx: tx}
}

// Lookup resolves a code against the hierarchy, most specific level first.
func (s *Service) Lookup(ctx context.Context, code string) (*Code, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalid)
	}
	for _, level := range lookupOrder {
		c, err := s.repo.FindCode(ctx, level, code)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// Search returns index entries whose normalized text contains query.
func (s *Service) Search(ctx context.Context, query, level string, limit int) ([]*SearchEntry, error) {
	text := Normalize(query)
	if text == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalid)
	}
	if level != "" && !ValidLevel(level) {
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalid, level)
	}
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalid, MaxSearchLimit)
	}

	entries, err := s.repo.Search(ctx, text, level, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*SearchEntry{}
	}
	return entries, nil
}

// ImportArchive replaces every ICD-10 table with the content of a DATASUS
// archive and rebuilds the search index. Nothing changes if any step fails.
func (s *Service) ImportArchive(ctx context.Context, r io.ReaderAt, size int64) (*ImportResult, error) {
	ds, err := ParseArchive(r, size)
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, ds)
}

// Import writes a parsed dataset in one transaction.
func (s *Service) Import(ctx context.Context, ds *Dataset) (*ImportResult, error) {
	if len(ds.Chapters) == 0 && len(ds.Subcategories) == 0 {
		return nil, fmt.Errorf("%w: archive holds no codes", ErrInvalid)
	}
	index := BuildIndex(ds)
	res := &ImportResult{}

	err := s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.Clear(ctx); err != nil {
			return fmt.Errorf("clear icd-10 tables: %w", err)
		}
		for _, step := range []struct {
			level string
			codes []*Code
			count *int
		}{
			{LevelChapter, ds.Chapters, &res.Chapters},
			{LevelGroup, ds.Groups, &res.Groups},
			{LevelCategory, ds.Categories, &res.Categories},
			{LevelSubcategory, ds.Subcategories, &res.Subcategories},
		} {
			n, err := s.repo.InsertCodes(ctx, step.level, step.codes)
			if err != nil {
				return err
			}
			*step.count = int(n)
		}
		n, err := s.repo.InsertSearchEntries(ctx, index)
		if err != nil {
			return err
		}
		res.SearchEntries = int(n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Int("chapters", res.Chapters).
		Int("groups", res.Groups).
		Int("categories", res.Categories).
		Int("subcategories", res.Subcategories).
		Int("search_entries", res.SearchEntries).
		Msg("icd-10 import complete")
	return res, nil
}
