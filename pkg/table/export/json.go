package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/screener-client/pkg/table"
)

// JSONExporter writes {"total", "columns", "records"} where each record is an
// object keyed by column name. Decimal cells are encoded as strings.
type JSONExporter struct {
	Indent bool
}

func NewJSONExporter() *JSONExporter {
	return &JSONExporter{Indent: true}
}

// Document is the JSON shape produced by JSONExporter.
type Document struct {
	Total   int              `json:"total"`
	Columns []string         `json:"columns"`
	Records []map[string]any `json:"records"`
}

// NewDocument converts t into its JSON document.
func NewDocument(t *table.Table) Document {
	doc := Document{
		Columns: t.Columns,
		Records: make([]map[string]any, 0, len(t.Rows)),
	}
	for _, cells := range t.Rows {
		obj := make(map[string]any, len(t.Columns))
		for j, col := range t.Columns {
			if j < len(cells) && cells[j] != nil {
				obj[col] = cells[j]
			}
		}
		doc.Records = append(doc.Records, obj)
	}
	doc.Total = len(doc.Records)
	return doc
}

func (e *JSONExporter) Export(t *table.Table, w io.Writer) error {
	if t == nil {
		return fmt.Errorf("export json: table is nil")
	}

	encoder := json.NewEncoder(w)
	if e.Indent {
		encoder.SetIndent("", "  ")
	}
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(NewDocument(t)); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}
