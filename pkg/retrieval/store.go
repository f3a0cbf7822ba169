package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/philippgille/chromem-go"
)

// Record is one indexed chunk.
type Record struct {
	ID        string
	Text      string
	Embedding []float32

	// Similarity is set on query results.
	Similarity float32
}

// errNoEmbeddingFunc guards against chromem computing embeddings itself.
// Every record and query carries a precomputed vector.
var errNoEmbeddingFunc = errors.New("retrieval: embeddings must be precomputed")

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// Store is a vector store backed by chromem-go, either persisted to a
// directory or held in memory.
type Store struct {
	db *chromem.DB
}

// OpenPersistent opens (or creates) a store under dir.
func OpenPersistent(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("retrieval: persist dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("retrieval: create %s: %w", dir, err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("retrieval: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// NewEphemeral returns an in-memory store.
func NewEphemeral() *Store {
	return &Store{db: chromem.NewDB()}
}

// Add inserts records into collection, creating it if needed.
func (s *Store) Add(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	c, err := s.db.GetOrCreateCollection(collection, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("retrieval: collection %s: %w", collection, err)
	}
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if len(r.Embedding) == 0 {
			return fmt.Errorf("retrieval: record %s has no embedding", r.ID)
		}
		docs[i] = chromem.Document{ID: r.ID, Content: r.Text, Embedding: r.Embedding}
	}
	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("retrieval: add to %s: %w", collection, err)
	}
	return nil
}

// Query returns the k nearest records to embedding. k is clamped to the
// collection size; a missing or empty collection yields no records.
func (s *Store) Query(ctx context.Context, collection string, embedding []float32, k int) ([]Record, error) {
	c := s.db.GetCollection(collection, noEmbedding)
	if c == nil || k <= 0 {
		return nil, nil
	}
	n := min(k, c.Count())
	if n == 0 {
		return nil, nil
	}
	results, err := c.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieval: query %s: %w", collection, err)
	}
	out := make([]Record, len(results))
	for i, r := range results {
		out[i] = Record{ID: r.ID, Text: r.Content, Similarity: r.Similarity}
	}
	return out, nil
}

// Count returns the number of records in collection.
func (s *Store) Count(collection string) int {
	c := s.db.GetCollection(collection, noEmbedding)
	if c == nil {
		return 0
	}
	return c.Count()
}

// Drop deletes collection.
func (s *Store) Drop(collection string) error {
	return s.db.DeleteCollection(collection)
}
