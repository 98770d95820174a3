// Package table assembles retrieved records into their final shape: either
// the plain record sequence or a uniform table with one row per record.
package table

import (
	"github.com/Sternrassler/screener-client/pkg/record"
)

// Table is a uniform tabular view of records. Row i corresponds to record i;
// the identifier is the ordinary first column named record.IDColumn.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at row for the named column. Missing cells and
// unknown columns yield nil.
func (t *Table) Cell(row int, name string) any {
	i := t.ColumnIndex(name)
	if i < 0 || row < 0 || row >= t.Len() {
		return nil
	}
	return t.Rows[row][i]
}

// Result is the outcome of a retrieval in the shape the caller asked for.
// Exactly one of Records and Table is meaningful: Table is nil in plain form.
type Result struct {
	Records []record.Record
	Table   *Table
}

// Assemble shapes records. In plain form Records is the input slice itself.
// In table form columns are the identifier followed by every attribute name
// in order of first appearance; an empty input still yields the identifier
// column.
func Assemble(records []record.Record, asTable bool) Result {
	if !asTable {
		if records == nil {
			records = []record.Record{}
		}
		return Result{Records: records}
	}
	return Result{Records: records, Table: build(records)}
}

func build(records []record.Record) *Table {
	columns := []string{record.IDColumn}
	index := map[string]int{record.IDColumn: 0}

	for _, r := range records {
		for _, name := range r.Names() {
			if _, seen := index[name]; seen {
				continue
			}
			index[name] = len(columns)
			columns = append(columns, name)
		}
	}

	rows := make([][]any, len(records))
	for i, r := range records {
		row := make([]any, len(columns))
		row[0] = r.ID()
		for _, name := range r.Names() {
			v, _ := r.Get(name)
			row[index[name]] = v
		}
		rows[i] = row
	}

	return &Table{Columns: columns, Rows: rows}
}
