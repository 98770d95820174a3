package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/Sternrassler/screener-client/pkg/table"
)

// CSVExporter writes a header row followed by one row per record.
type CSVExporter struct {
	// BOM prefixes the output with a UTF-8 byte order mark for spreadsheet tools.
	BOM bool
}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

func (e *CSVExporter) Export(t *table.Table, w io.Writer) error {
	if t == nil {
		return fmt.Errorf("export csv: table is nil")
	}

	if e.BOM {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)

	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(t.Columns))
	for i, cells := range t.Rows {
		for j := range row {
			row[j] = ""
			if j < len(cells) {
				row[j] = formatCell(cells[j])
			}
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
