package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/studygraph/studygraph/rag"
)

// loadText loads a plain text or markdown file as a single document.
func loadText(path string) ([]rag.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, fmt.Errorf("file %s is empty", path)
	}

	fileType := "text"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		fileType = "markdown"
	}

	now := time.Now()
	return []rag.Document{
		{
			ID:        docID(path, 0),
			Content:   content,
			Metadata:  baseMetadata(path, fileType),
			CreatedAt: now,
			UpdatedAt: now,
		},
	}, nil
}
