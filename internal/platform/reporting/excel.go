package reporting

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// sheetName returns a worksheet name Excel accepts: no []:*?/\ characters
// and at most 31 characters.
func sheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return ' '
		}
		return r
	}, strings.TrimSpace(title))
	name = strings.Trim(name, "'")
	if strings.TrimSpace(name) == "" {
		name = "Report"
	}
	return truncateRunes(name, maxSheetName)
}

// RenderExcel writes doc to a single worksheet named after title. Scalar
// entries become label/value rows; tables follow with a bold header row.
func RenderExcel(title string, doc Document) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	row := 1
	setRow := func(values []interface{}, style int) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
		if style != 0 && len(values) > 0 {
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			if err := f.SetCellStyle(sheet, cell, last, style); err != nil {
				return err
			}
		}
		row++
		return nil
	}

	for _, entry := range doc.Entries {
		if entry.Table == nil {
			if err := setRow([]interface{}{entry.Label, entry.Value}, 0); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
			continue
		}

		row++
		if err := setRow([]interface{}{entry.Label}, bold); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		header := make([]interface{}, len(entry.Table.Columns))
		for i, c := range entry.Table.Columns {
			header[i] = c
		}
		if err := setRow(header, bold); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		for _, r := range entry.Table.Rows {
			values := make([]interface{}, len(r))
			for i, v := range r {
				values[i] = v
			}
			if err := setRow(values, 0); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 32); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}
