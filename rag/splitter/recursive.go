// Package splitter chunks documents into bounded, overlapping pieces for
// embedding and storage.
package splitter

import (
	"fmt"
	"strings"

	"github.com/studygraph/studygraph/rag"
)

// RecursiveCharacterTextSplitter splits text by trying a list of separators
// in order, keeping semantically related pieces together, and falls back to a
// fixed character window when no separator applies.
type RecursiveCharacterTextSplitter struct {
	separators   []string
	chunkSize    int
	chunkOverlap int
}

// Option configures the RecursiveCharacterTextSplitter.
type Option func(*RecursiveCharacterTextSplitter)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(s *RecursiveCharacterTextSplitter) {
		s.chunkSize = size
	}
}

// WithChunkOverlap sets the number of characters shared between consecutive
// chunks.
func WithChunkOverlap(overlap int) Option {
	return func(s *RecursiveCharacterTextSplitter) {
		s.chunkOverlap = overlap
	}
}

// WithSeparators sets the separators tried in order before the character
// window fallback.
func WithSeparators(separators []string) Option {
	return func(s *RecursiveCharacterTextSplitter) {
		s.separators = separators
	}
}

// NewRecursiveCharacterTextSplitter creates a splitter. Overlap must be
// smaller than the chunk size.
func NewRecursiveCharacterTextSplitter(opts ...Option) (*RecursiveCharacterTextSplitter, error) {
	s := &RecursiveCharacterTextSplitter{
		separators:   []string{"\n\n", "\n", " ", ""},
		chunkSize:    1000,
		chunkOverlap: 200,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", s.chunkSize)
	}
	if s.chunkOverlap < 0 || s.chunkOverlap >= s.chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", s.chunkOverlap)
	}

	return s, nil
}

// SplitText splits text into chunks of at most the configured chunk size.
// A text already within the chunk size yields exactly one chunk.
func (s *RecursiveCharacterTextSplitter) SplitText(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= s.chunkSize {
		return []string{text}
	}
	return s.splitRecursive(text, s.separators)
}

// SplitDocuments splits documents into chunk documents, inheriting the
// parent's metadata and recording chunk_index, chunk_total, and parent_id.
func (s *RecursiveCharacterTextSplitter) SplitDocuments(docs []rag.Document) []rag.Document {
	chunks := make([]rag.Document, 0, len(docs))

	for _, doc := range docs {
		textChunks := s.SplitText(doc.Content)

		for i, chunk := range textChunks {
			metadata := make(map[string]any, len(doc.Metadata)+3)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata["chunk_index"] = i
			metadata["chunk_total"] = len(textChunks)
			metadata["parent_id"] = doc.ID

			chunks = append(chunks, rag.Document{
				ID:        fmt.Sprintf("%s_chunk_%d", doc.ID, i),
				Content:   chunk,
				Metadata:  metadata,
				CreatedAt: doc.CreatedAt,
				UpdatedAt: doc.UpdatedAt,
			})
		}
	}

	return chunks
}

func (s *RecursiveCharacterTextSplitter) splitRecursive(text string, separators []string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return s.splitByWindow(text)
	}

	separator := separators[0]
	rest := separators[1:]
	if separator == "" {
		return s.splitByWindow(text)
	}

	parts := strings.Split(text, separator)

	var splits []string
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if len(part) <= s.chunkSize {
			splits = append(splits, part)
		} else {
			splits = append(splits, s.splitRecursive(part, rest)...)
		}
	}

	return s.mergeSplits(splits, separator)
}

// mergeSplits greedily packs splits into chunks up to the chunk size. Each
// new chunk starts with the trailing splits of the previous one, up to the
// overlap budget, so consecutive chunks share boundary text.
func (s *RecursiveCharacterTextSplitter) mergeSplits(splits []string, separator string) []string {
	var chunks []string
	var current []string
	currentLen := 0

	joinedLen := func(parts []string) int {
		n := 0
		for i, p := range parts {
			if i > 0 {
				n += len(separator)
			}
			n += len(p)
		}
		return n
	}

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, separator))
		}
	}

	for _, split := range splits {
		addition := len(split)
		if len(current) > 0 {
			addition += len(separator)
		}

		if currentLen+addition > s.chunkSize && len(current) > 0 {
			flush()

			// Keep trailing splits within the overlap budget as the start of
			// the next chunk
			var tail []string
			tailLen := 0
			for i := len(current) - 1; i >= 0; i-- {
				extra := len(current[i])
				if tailLen > 0 {
					extra += len(separator)
				}
				if tailLen+extra > s.chunkOverlap {
					break
				}
				tail = append([]string{current[i]}, tail...)
				tailLen += extra
			}
			current = tail
			currentLen = joinedLen(current)

			addition = len(split)
			if len(current) > 0 {
				addition += len(separator)
			}
		}

		current = append(current, split)
		currentLen += addition
	}
	flush()

	return chunks
}

// splitByWindow slides a fixed window of chunkSize characters, stepping by
// chunkSize-chunkOverlap, so consecutive chunks share exactly chunkOverlap
// characters.
func (s *RecursiveCharacterTextSplitter) splitByWindow(text string) []string {
	step := s.chunkSize - s.chunkOverlap

	var chunks []string
	for i := 0; i < len(text); i += step {
		end := i + s.chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[i:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}

var _ rag.TextSplitter = (*RecursiveCharacterTextSplitter)(nil)
