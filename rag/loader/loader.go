// Package loader reads course materials from disk into documents. Each file
// format has its own extractor; the directory loader walks the materials
// tree and dispatches on extension.
package loader

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/studygraph/studygraph/log"
	"github.com/studygraph/studygraph/rag"
)

// ErrUnsupportedFileType is returned by LoadFile for extensions without an
// extractor.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// DirectoryLoader walks a materials directory and loads every supported
// file. Unsupported extensions are skipped; per-file failures are collected
// in the IngestReport without aborting the run.
type DirectoryLoader struct {
	root   string
	logger log.Logger
}

// DirectoryLoaderOption configures the DirectoryLoader.
type DirectoryLoaderOption func(*DirectoryLoader)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) DirectoryLoaderOption {
	return func(l *DirectoryLoader) {
		l.logger = logger
	}
}

// NewDirectoryLoader creates a loader rooted at the given materials
// directory.
func NewDirectoryLoader(root string, opts ...DirectoryLoaderOption) *DirectoryLoader {
	l := &DirectoryLoader{
		root:   root,
		logger: log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load walks the materials tree and returns the loaded documents together
// with an ingestion report.
func (l *DirectoryLoader) Load(ctx context.Context) ([]rag.Document, *rag.IngestReport, error) {
	var docs []rag.Document
	report := &rag.IngestReport{}

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		fileDocs, err := LoadFile(path)
		if err != nil {
			if errors.Is(err, ErrUnsupportedFileType) {
				l.logger.Debug("skipping %s: unsupported extension", path)
				report.FilesSkipped++
				return nil
			}
			l.logger.Warn("failed to load %s: %v", path, err)
			report.Failures = append(report.Failures, rag.FileFailure{
				Path: path,
				Err:  err.Error(),
			})
			return nil
		}

		docs = append(docs, fileDocs...)
		report.FilesLoaded++
		report.Documents += len(fileDocs)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk materials directory %s: %w", l.root, err)
	}

	l.logger.Info("loaded %d documents from %d files (%d skipped, %d failed)",
		report.Documents, report.FilesLoaded, report.FilesSkipped, len(report.Failures))

	return docs, report, nil
}

var _ rag.Loader = (*DirectoryLoader)(nil)

// LoadFile loads a single file, dispatching on its extension.
func LoadFile(path string) ([]rag.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return loadText(path)
	case ".pdf":
		return loadPDF(path)
	case ".xlsx", ".xlsm":
		return loadSpreadsheet(path)
	case ".csv":
		return loadCSV(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Ext(path))
	}
}

// baseMetadata builds the metadata shared by all documents from one file.
func baseMetadata(path, fileType string) map[string]any {
	return map[string]any{
		"source":    path,
		"file_name": filepath.Base(path),
		"file_type": fileType,
	}
}

// docID derives a stable document ID from the source path and part number,
// so re-ingesting the same file produces the same IDs.
func docID(path string, part int) string {
	h := fnv.New64a()
	h.Write([]byte(path))
	return fmt.Sprintf("doc_%x_%d", h.Sum64(), part)
}
