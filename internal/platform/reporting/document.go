// Package reporting renders analytics documents to PDF and Excel.
package reporting

import (
	"fmt"
	"strconv"
	"time"
)

// Table is a titled grid of pre-formatted cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Entry is either a scalar "label: value" line or a table.
type Entry struct {
	Label string
	Value string
	Table *Table
}

// Document is an ordered list of entries. Renderers keep the order.
type Document struct {
	Entries []Entry
}

// Add appends a scalar entry.
func (d *Document) Add(label string, value interface{}) {
	d.Entries = append(d.Entries, Entry{Label: label, Value: FormatValue(value)})
}

// AddTable appends a table entry. A table with no rows is still rendered
// with its header so that empty sections remain visible in exports.
func (d *Document) AddTable(label string, columns []string, rows [][]string) {
	d.Entries = append(d.Entries, Entry{Label: label, Table: &Table{Columns: columns, Rows: rows}})
}

// FormatValue renders a cell value the way exports display it.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', 2, 32)
	case *float64:
		if x == nil {
			return "-"
		}
		return strconv.FormatFloat(*x, 'f', 2, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
