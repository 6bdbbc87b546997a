package loader

import (
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/studygraph/studygraph/rag"
)

// loadPDF extracts text from a PDF, one document per page so citations can
// point at page numbers. Pages without extractable text are skipped.
func loadPDF(path string) ([]rag.Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	now := time.Now()
	var docs []rag.Document

	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Scanned or malformed pages are not fatal for the file
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		metadata := baseMetadata(path, "pdf")
		metadata["page"] = pageNum
		metadata["page_total"] = reader.NumPage()

		docs = append(docs, rag.Document{
			ID:        docID(path, pageNum),
			Content:   text,
			Metadata:  metadata,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}
	return docs, nil
}
