package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
)

// Sheet is one tabular attendance report ready for rendering: an ordered
// column list and rows already projected to strings in the same order.
type Sheet struct {
	Title       string
	Columns     []string
	Rows        [][]string
	GeneratedAt time.Time
}

// CSVExporter renders attendance sheets as CSV. The title and timestamp are
// carried in the download file name, not the payload, so the output stays
// machine-readable.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV bytes for the sheet. Rows shorter than the column list
// are padded; longer rows are an error since they would shift columns.
func (e *CSVExporter) Render(sheet Sheet) ([]byte, error) {
	if len(sheet.Columns) == 0 {
		return nil, fmt.Errorf("csv requires at least one column")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(sheet.Columns); err != nil {
		return nil, fmt.Errorf("write csv columns: %w", err)
	}
	for i, row := range sheet.Rows {
		if len(row) > len(sheet.Columns) {
			return nil, fmt.Errorf("csv row %d has %d cells, want at most %d", i, len(row), len(sheet.Columns))
		}
		record := make([]string, len(sheet.Columns))
		copy(record, row)
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
