package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/studygraph/studygraph/rag"
)

const vectorTable = "vector_documents"

// SQLiteVectorStore persists embedded documents in SQLite so the index
// survives restarts. Vectors are stored as little-endian float32 blobs and
// the whole collection is mirrored in memory at open, so searches never
// touch the database. Writes go through transactions; a reader reopening the
// file never observes a half-written batch.
type SQLiteVectorStore struct {
	mu         sync.RWMutex
	db         *sql.DB
	documents  []rag.Document
	embeddings [][]float32
	byID       map[string]int
}

// NewSQLiteVectorStore opens (or creates) the store at the given path and
// loads the existing collection into memory.
func NewSQLiteVectorStore(path string) (*SQLiteVectorStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store %s: %w", path, err)
	}

	s := &SQLiteVectorStore{
		db:   db,
		byID: make(map[string]int),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteVectorStore) initSchema() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`, vectorTable)

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}
	return nil
}

func (s *SQLiteVectorStore) loadAll() error {
	rows, err := s.db.Query(fmt.Sprintf(
		"SELECT id, content, metadata, embedding, created_at, updated_at FROM %s ORDER BY rowid ASC",
		vectorTable))
	if err != nil {
		return fmt.Errorf("failed to load vector store: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc rag.Document
		var metadataJSON sql.NullString
		var blob []byte

		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &blob, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan document: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
				return fmt.Errorf("failed to decode metadata for %s: %w", doc.ID, err)
			}
		}
		doc.Embedding = decodeVector(blob)

		s.byID[doc.ID] = len(s.documents)
		s.documents = append(s.documents, doc)
		s.embeddings = append(s.embeddings, doc.Embedding)
	}
	return rows.Err()
}

// Add stores documents in one transaction and updates the in-memory mirror.
// A document with an existing ID replaces the stored one.
func (s *SQLiteVectorStore) Add(ctx context.Context, docs []rag.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
		if len(s.embeddings) > 0 && len(doc.Embedding) != len(s.embeddings[0]) {
			return fmt.Errorf("%w: document %s has %d, store has %d",
				rag.ErrDimensionMismatch, doc.ID, len(doc.Embedding), len(s.embeddings[0]))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
	INSERT INTO %s (id, content, metadata, embedding, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		content = excluded.content,
		metadata = excluded.metadata,
		embedding = excluded.embedding,
		updated_at = excluded.updated_at`, vectorTable))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", doc.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Content, string(metadataJSON),
			encodeVector(doc.Embedding), doc.CreatedAt, doc.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	for _, doc := range docs {
		if pos, ok := s.byID[doc.ID]; ok {
			s.documents[pos] = doc
			s.embeddings[pos] = doc.Embedding
			continue
		}
		s.byID[doc.ID] = len(s.documents)
		s.documents = append(s.documents, doc)
		s.embeddings = append(s.embeddings, doc.Embedding)
	}
	return nil
}

// Search ranks stored documents against the query vector.
func (s *SQLiteVectorStore) Search(_ context.Context, query []float32, opts rag.SearchOptions) ([]rag.DocumentSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return searchVectors(query, s.documents, s.embeddings, opts)
}

// Reset drops and recreates the table and clears the in-memory mirror.
func (s *SQLiteVectorStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", vectorTable)); err != nil {
		return fmt.Errorf("failed to drop vector table: %w", err)
	}
	if err := s.initSchema(); err != nil {
		return err
	}

	s.documents = nil
	s.embeddings = nil
	s.byID = make(map[string]int)
	return nil
}

// Count returns the number of stored documents.
func (s *SQLiteVectorStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}

// Dimension returns the stored vector dimension, 0 when empty.
func (s *SQLiteVectorStore) Dimension(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.embeddings) == 0 {
		return 0, nil
	}
	return len(s.embeddings[0]), nil
}

// Sources returns the distinct source paths of the stored documents.
func (s *SQLiteVectorStore) Sources(_ context.Context) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make(map[string]bool)
	for i := range s.documents {
		if src := s.documents[i].Source(); src != "" {
			sources[src] = true
		}
	}
	return sources, nil
}

// Close closes the database handle.
func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}

// encodeVector packs a float32 vector into a little-endian blob.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a little-endian blob into a float32 vector.
func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}

var _ rag.VectorStore = (*SQLiteVectorStore)(nil)
