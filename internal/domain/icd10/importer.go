package icd10

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// DATASUS file names inside the CID-10 archive.
const (
	fileChapters      = "CID-10-CAPITULOS.CSV"
	fileGroups        = "CID-10-GRUPOS.CSV"
	fileCategories    = "CID-10-CATEGORIAS.CSV"
	fileSubcategories = "CID-10-SUBCATEGORIAS.CSV"
)

// record is one CSV row keyed by upper-cased header.
type record map[string]string

// first returns the first non-empty value among keys.
func (r record) first(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

func (r record) optional(keys ...string) *string {
	if v := r.first(keys...); v != "" {
		return &v
	}
	return nil
}

// ParseArchive reads the four DATASUS tables from a CID-10 zip archive.
func ParseArchive(r io.ReaderAt, size int64) (*Dataset, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip archive: %v", ErrInvalid, err)
	}

	files := make(map[string]*zip.File)
	for _, f := range zr.File {
		files[strings.ToUpper(path.Base(f.Name))] = f
	}

	var missing []string
	for _, name := range []string{fileChapters, fileGroups, fileCategories, fileSubcategories} {
		if files[name] == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: archive is missing %s", ErrInvalid, strings.Join(missing, ", "))
	}

	read := func(name string) ([]record, error) {
		rc, err := files[name].Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		recs, err := readCSV(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
		return recs, nil
	}

	chapterRows, err := read(fileChapters)
	if err != nil {
		return nil, err
	}
	groupRows, err := read(fileGroups)
	if err != nil {
		return nil, err
	}
	categoryRows, err := read(fileCategories)
	if err != nil {
		return nil, err
	}
	subcategoryRows, err := read(fileSubcategories)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{}
	ds.Chapters = parseChapters(chapterRows)
	ds.Groups = parseGroups(groupRows, ds.Chapters)
	ds.Categories = parseCategories(categoryRows, ds.Groups)
	ds.Subcategories = parseSubcategories(subcategoryRows)
	return ds, nil
}

// readCSV decodes a semicolon separated ISO-8859-1 file.
func readCSV(r io.Reader) ([]record, error) {
	cr := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(r))
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	for i, h := range header {
		header[i] = strings.ToUpper(strings.TrimSpace(trimBOM(h)))
	}

	var out []record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := make(record, len(header))
		for i, h := range header {
			if i < len(row) {
				rec[h] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// trimBOM drops a UTF-8 byte order mark, which reads as "ï»¿" once the file
// is decoded as Latin-1.
func trimBOM(s string) string {
	return strings.TrimPrefix(strings.TrimPrefix(s, "\ufeff"), "\u00ef\u00bb\u00bf")
}

func parseChapters(rows []record) []*Code {
	var out []*Code
	for _, r := range rows {
		code := r.first("CLASSIF", "NUMCAP")
		if code == "" {
			continue
		}
		out = append(out, &Code{
			Code:             code,
			Level:            LevelChapter,
			Description:      r.first("DESCRICAO"),
			DescriptionShort: r.optional("DESCRABREV"),
			StartCode:        r.optional("CATINIC"),
			EndCode:          r.optional("CATFIM"),
		})
	}
	return out
}

func parseGroups(rows []record, chapters []*Code) []*Code {
	var out []*Code
	for _, r := range rows {
		code := r.first("CLASSIF")
		start, end := r.first("CATINIC"), r.first("CATFIM")
		if code == "" && start != "" {
			code = start + "-" + end
		}
		if code == "" {
			continue
		}
		parent := r.optional("CAPITULO")
		if parent == nil && start != "" {
			parent = enclosing(chapters, start)
		}
		out = append(out, &Code{
			Code:             code,
			Level:            LevelGroup,
			Description:      r.first("DESCRICAO"),
			DescriptionShort: r.optional("DESCRABREV"),
			ParentCode:       parent,
			StartCode:        r.optional("CATINIC"),
			EndCode:          r.optional("CATFIM"),
		})
	}
	return out
}

func parseCategories(rows []record, groups []*Code) []*Code {
	var out []*Code
	for _, r := range rows {
		code := r.first("CAT", "CLASSIF")
		if code == "" {
			continue
		}
		var classification *string
		if r.first("CAT") != "" {
			classification = r.optional("CLASSIF")
		}
		parent := r.optional("GRUPO")
		if parent == nil {
			parent = enclosing(groups, code)
		}
		out = append(out, &Code{
			Code:             code,
			Level:            LevelCategory,
			Description:      r.first("DESCRICAO"),
			DescriptionShort: r.optional("DESCRABREV"),
			ParentCode:       parent,
			Classification:   classification,
			Refer:            r.optional("REFER"),
			Excluded:         r.optional("EXCLUIDOS"),
		})
	}
	return out
}

func parseSubcategories(rows []record) []*Code {
	var out []*Code
	for _, r := range rows {
		code := r.first("SUBCAT", "CLASSIF")
		if code == "" {
			continue
		}
		var classification *string
		if r.first("SUBCAT") != "" {
			classification = r.optional("CLASSIF")
		}
		category := r.first("CAT")
		if category == "" && len(code) >= 3 {
			category = code[:3]
		}
		death := strings.EqualFold(r.first("CAUSAOBITO"), "S")
		out = append(out, &Code{
			Code:             code,
			Level:            LevelSubcategory,
			Description:      r.first("DESCRICAO"),
			DescriptionShort: r.optional("DESCRABREV"),
			ParentCode:       &category,
			Classification:   classification,
			RestrictSex:      r.optional("RESTRSEX", "RESTRSEXO"),
			CauseOfDeath:     &death,
			Refer:            r.optional("REFER"),
			Excluded:         r.optional("EXCLUIDOS"),
		})
	}
	return out
}

// enclosing returns the code of the range entry whose [start, end] covers
// code. Ranges are compared on the three character category prefix.
func enclosing(ranges []*Code, code string) *string {
	key := code
	if len(key) > 3 {
		key = key[:3]
	}
	candidates := make([]*Code, 0, len(ranges))
	for _, r := range ranges {
		if r.StartCode != nil && r.EndCode != nil {
			candidates = append(candidates, r)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return *candidates[i].StartCode < *candidates[j].StartCode })
	for _, r := range candidates {
		if key >= *r.StartCode && key <= *r.EndCode {
			parent := r.Code
			return &parent
		}
	}
	return nil
}
