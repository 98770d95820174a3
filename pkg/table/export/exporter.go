// Package export writes assembled tables to CSV and JSON.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Sternrassler/screener-client/pkg/table"
)

// Exporter writes a table to w.
type Exporter interface {
	Export(t *table.Table, w io.Writer) error
}

// ForFormat returns the exporter registered for format ("csv" or "json").
func ForFormat(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "csv":
		return NewCSVExporter(), nil
	case "json":
		return NewJSONExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// ForPath picks the exporter from the file extension of path.
func ForPath(path string) (Exporter, error) {
	return ForFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// WriteFile exports t to outputPath, creating or truncating it.
func WriteFile(e Exporter, t *table.Table, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}

	if err := e.Export(t, file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", outputPath, err)
	}
	return nil
}

// formatCell renders a cell for text output. nil becomes the empty string.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case decimal.Decimal:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	case []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
