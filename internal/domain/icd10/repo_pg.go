package icd10

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// levelTable describes how a hierarchy level is stored.
type levelTable struct {
	table   string
	columns []string
	values  func(c *Code) []any
}

var levelTables = map[string]levelTable{
	LevelChapter: {
		table:   "icd10_chapters",
		columns: []string{"code", "description", "description_short", "start_code", "end_code"},
		values: func(c *Code) []any {
			return []any{c.Code, c.Description, c.DescriptionShort, c.StartCode, c.EndCode}
		},
	},
	LevelGroup: {
		table:   "icd10_groups",
		columns: []string{"code", "description", "description_short", "chapter_code", "start_code", "end_code"},
		values: func(c *Code) []any {
			return []any{c.Code, c.Description, c.DescriptionShort, c.ParentCode, c.StartCode, c.EndCode}
		},
	},
	LevelCategory: {
		table:   "icd10_categories",
		columns: []string{"code", "description", "description_short", "group_code", "classification", "refer", "excluded"},
		values: func(c *Code) []any {
			return []any{c.Code, c.Description, c.DescriptionShort, c.ParentCode, c.Classification, c.Refer, c.Excluded}
		},
	},
	LevelSubcategory: {
		table:   "icd10_subcategories",
		columns: []string{"code", "description", "description_short", "category_code", "classification", "restrict_sex", "cause_of_death", "refer", "excluded"},
		values: func(c *Code) []any {
			death := c.CauseOfDeath != nil && *c.CauseOfDeath
			return []any{c.Code, c.Description, c.DescriptionShort, c.ParentCode, c.Classification,
				c.RestrictSex, death, c.Refer, c.Excluded}
		},
	},
}

func (r *repoPG) FindCode(ctx context.Context, level, code string) (*Code, error) {
	t, ok := levelTables[level]
	if !ok {
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalid, level)
	}

	c := &Code{Level: level}
	var err error
	switch level {
	case LevelChapter:
		err = r.conn(ctx).QueryRow(ctx, `
			SELECT code, description, description_short, start_code, end_code
			FROM `+t.table+` WHERE code = $1`, code,
		).Scan(&c.Code, &c.Description, &c.DescriptionShort, &c.StartCode, &c.EndCode)
	case LevelGroup:
		err = r.conn(ctx).QueryRow(ctx, `
			SELECT code, description, description_short, chapter_code, start_code, end_code
			FROM `+t.table+` WHERE code = $1`, code,
		).Scan(&c.Code, &c.Description, &c.DescriptionShort, &c.ParentCode, &c.StartCode, &c.EndCode)
	case LevelCategory:
		err = r.conn(ctx).QueryRow(ctx, `
			SELECT code, description, description_short, group_code, classification, refer, excluded
			FROM `+t.table+` WHERE code = $1`, code,
		).Scan(&c.Code, &c.Description, &c.DescriptionShort, &c.ParentCode, &c.Classification, &c.Refer, &c.Excluded)
	case LevelSubcategory:
		var death bool
		err = r.conn(ctx).QueryRow(ctx, `
			SELECT code, description, description_short, category_code, classification,
				restrict_sex, cause_of_death, refer, excluded
			FROM `+t.table+` WHERE code = $1`, code,
		).Scan(&c.Code, &c.Description, &c.DescriptionShort, &c.ParentCode, &c.Classification,
			&c.RestrictSex, &death, &c.Refer, &c.Excluded)
		c.CauseOfDeath = &death
	}
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

func (r *repoPG) Search(ctx context.Context, text, level string, limit int) ([]*SearchEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT code, level, description, parent_code
		FROM icd10_search_index
		WHERE search_text ILIKE '%' || $1 || '%'
		  AND ($2 = '' OR level = $2)
		ORDER BY CASE level
			WHEN 'subcategory' THEN 1 WHEN 'category' THEN 2
			WHEN 'group' THEN 3 ELSE 4 END, code
		LIMIT $3`, text, level, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SearchEntry
	for rows.Next() {
		e := &SearchEntry{}
		if err := rows.Scan(&e.Code, &e.Level, &e.Description, &e.ParentCode); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repoPG) Clear(ctx context.Context) error {
	_, err := r.conn(ctx).Exec(ctx, `
		TRUNCATE icd10_search_index, icd10_subcategories, icd10_categories,
			icd10_groups, icd10_chapters RESTART IDENTITY`)
	return err
}

func (r *repoPG) InsertCodes(ctx context.Context, level string, codes []*Code) (int64, error) {
	t, ok := levelTables[level]
	if !ok {
		return 0, fmt.Errorf("%w: unknown level %q", ErrInvalid, level)
	}
	n, err := r.conn(ctx).CopyFrom(ctx, pgx.Identifier{t.table}, t.columns,
		pgx.CopyFromSlice(len(codes), func(i int) ([]any, error) {
			return t.values(codes[i]), nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", t.table, mapError(err))
	}
	return n, nil
}

func (r *repoPG) InsertSearchEntries(ctx context.Context, entries []*SearchEntry) (int64, error) {
	n, err := r.conn(ctx).CopyFrom(ctx, pgx.Identifier{"icd10_search_index"},
		[]string{"code", "level", "description", "parent_code", "search_text"},
		pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
			e := entries[i]
			return []any{e.Code, e.Level, e.Description, e.ParentCode, e.SearchText}, nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy icd10_search_index: %w", err)
	}
	return n, nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: duplicate code in archive", ErrInvalid)
	default:
		return err
	}
}

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}
