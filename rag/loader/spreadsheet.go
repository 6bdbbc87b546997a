package loader

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/studygraph/studygraph/rag"
)

// loadSpreadsheet turns a workbook into one document per non-empty sheet.
// The first row is treated as the header and each data row is rendered as
// "header: value" pairs so row content survives chunking without losing its
// column meaning.
func loadSpreadsheet(path string) ([]rag.Document, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer wb.Close()

	now := time.Now()
	var docs []rag.Document

	for i, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s in %s: %w", sheet, path, err)
		}
		content := tabularContent(sheet, rows)
		if content == "" {
			continue
		}

		metadata := baseMetadata(path, "spreadsheet")
		metadata["sheet"] = sheet

		docs = append(docs, rag.Document{
			ID:        docID(path, i),
			Content:   content,
			Metadata:  metadata,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}
	return docs, nil
}

// loadCSV renders a CSV file as a single header-annotated document.
func loadCSV(path string) ([]rag.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv %s: %w", path, err)
	}

	content := tabularContent("", rows)
	if content == "" {
		return nil, fmt.Errorf("no data rows in %s", path)
	}

	now := time.Now()
	return []rag.Document{
		{
			ID:        docID(path, 0),
			Content:   content,
			Metadata:  baseMetadata(path, "csv"),
			CreatedAt: now,
			UpdatedAt: now,
		},
	}, nil
}

// tabularContent renders rows as one line per record, pairing each cell with
// its header. Rows with no non-empty cells are dropped.
func tabularContent(sheet string, rows [][]string) string {
	var header []string
	var lines []string

	if sheet != "" {
		lines = append(lines, fmt.Sprintf("Sheet: %s", sheet))
	}

	for _, row := range rows {
		if rowEmpty(row) {
			continue
		}
		if header == nil {
			header = row
			continue
		}

		var fields []string
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				fields = append(fields, fmt.Sprintf("%s: %s", strings.TrimSpace(header[i]), cell))
			} else {
				fields = append(fields, cell)
			}
		}
		if len(fields) > 0 {
			lines = append(lines, strings.Join(fields, " | "))
		}
	}

	// Header-only input carries no content worth indexing
	if len(lines) == 0 || (sheet != "" && len(lines) == 1) {
		return ""
	}
	return strings.Join(lines, "\n")
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
