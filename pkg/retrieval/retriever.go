// Package retrieval answers free-text queries with the nearest indexed text
// chunks. The knowledge base is a persisted collection built from text
// files; canvas queries build a throwaway collection from a live board
// snapshot on every call.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/teslashibe/go-medforce/pkg/board"
)

// Defaults.
const (
	DefaultCollection = "local_docs"
	DefaultPersistDir = "./chroma_db/chroma_store"
	DefaultTopK       = 3

	snapshotPrefix = "temp_json_rag_"
)

// Config holds retrieval settings.
type Config struct {
	Provider   string  `yaml:"provider" toml:"provider" json:"provider"`
	Model      string  `yaml:"model" toml:"model" json:"model"`
	BaseURL    string  `yaml:"base_url" toml:"base_url" json:"base_url"`
	PersistDir string  `yaml:"persist_dir" toml:"persist_dir" json:"persist_dir"`
	Collection string  `yaml:"collection" toml:"collection" json:"collection"`
	TopK       int     `yaml:"top_k" toml:"top_k" json:"top_k"`
	RateLimit  float64 `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`

	DocChunkSize         int `yaml:"doc_chunk_size" toml:"doc_chunk_size" json:"doc_chunk_size"`
	DocChunkOverlap      int `yaml:"doc_chunk_overlap" toml:"doc_chunk_overlap" json:"doc_chunk_overlap"`
	SnapshotChunkSize    int `yaml:"snapshot_chunk_size" toml:"snapshot_chunk_size" json:"snapshot_chunk_size"`
	SnapshotChunkOverlap int `yaml:"snapshot_chunk_overlap" toml:"snapshot_chunk_overlap" json:"snapshot_chunk_overlap"`

	// TokenEncoding measures chunks in tiktoken tokens instead of runes
	// (e.g. "cl100k_base"). Empty counts runes.
	TokenEncoding string `yaml:"token_encoding" toml:"token_encoding" json:"token_encoding"`
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{
		Provider:             ProviderGemini,
		PersistDir:           DefaultPersistDir,
		Collection:           DefaultCollection,
		TopK:                 DefaultTopK,
		RateLimit:            5,
		DocChunkSize:         DocChunkSize,
		DocChunkOverlap:      DocChunkOverlap,
		SnapshotChunkSize:    SnapshotChunkSize,
		SnapshotChunkOverlap: SnapshotChunkOverlap,
	}
}

// NewEmbedder builds the embedder selected by cfg.Provider.
func NewEmbedder(ctx context.Context, cfg Config, googleKey, openaiKey string) (Embedder, error) {
	switch cfg.Provider {
	case "", ProviderGemini:
		return NewGeminiEmbedder(ctx, googleKey, cfg.Model, cfg.RateLimit)
	case ProviderOpenAI:
		return NewOpenAIEmbedder(openaiKey, cfg.BaseURL, cfg.Model, cfg.RateLimit)
	case ProviderHash:
		return HashEmbedder{}, nil
	default:
		return nil, fmt.Errorf("retrieval: unknown embedding provider %q", cfg.Provider)
	}
}

// ItemLister fetches the live board snapshot.
type ItemLister interface {
	ListItems(ctx context.Context) ([]board.Item, error)
}

// Retriever runs knowledge-base and canvas-snapshot queries.
type Retriever struct {
	cfg       Config
	store     *Store
	embedder  Embedder
	board     ItemLister
	docs      *Splitter
	snapshots *Splitter
	logger    *slog.Logger
}

// New creates a Retriever. store may be nil when only snapshot queries are
// needed; lister may be nil when only the knowledge base is.
func New(cfg Config, store *Store, embedder Embedder, lister ItemLister, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	docs := NewSplitter(orDefault(cfg.DocChunkSize, DocChunkSize), orDefault(cfg.DocChunkOverlap, DocChunkOverlap))
	snaps := NewSplitter(orDefault(cfg.SnapshotChunkSize, SnapshotChunkSize), orDefault(cfg.SnapshotChunkOverlap, SnapshotChunkOverlap))
	if cfg.TokenEncoding != "" {
		length, err := TokenLength(cfg.TokenEncoding)
		if err != nil {
			logger.Warn("token length unavailable, counting runes", "encoding", cfg.TokenEncoding, "error", err)
		} else {
			docs.Length = length
			snaps.Length = length
		}
	}
	return &Retriever{
		cfg:       cfg,
		store:     store,
		embedder:  embedder,
		board:     lister,
		docs:      docs,
		snapshots: snaps,
		logger:    logger,
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Query returns the top-k knowledge-base chunks joined by newlines, or ""
// when nothing is indexed or any step fails.
func (r *Retriever) Query(ctx context.Context, text string, k int) string {
	if r.store == nil {
		return ""
	}
	records, err := r.search(ctx, r.store, r.cfg.Collection, text, k)
	if err != nil {
		r.logger.Warn("knowledge base query failed", "error", err)
		return ""
	}
	return joinRecords(records)
}

// QuerySnapshot fetches the board, indexes it into a throwaway collection,
// and returns the top-k chunks. The collection is dropped before returning.
func (r *Retriever) QuerySnapshot(ctx context.Context, text string, k int) string {
	if r.board == nil {
		return ""
	}
	out, err := r.querySnapshot(ctx, text, k)
	if err != nil {
		r.logger.Warn("canvas snapshot query failed", "error", err)
		return ""
	}
	return out
}

func (r *Retriever) querySnapshot(ctx context.Context, text string, k int) (string, error) {
	items, err := r.board.ListItems(ctx)
	if err != nil {
		return "", err
	}

	var chunks []string
	for i, item := range items {
		chunks = append(chunks, r.snapshots.Split(Flatten(item, i))...)
	}
	if len(chunks) == 0 {
		return "", nil
	}

	embeddings, err := r.embedder.Embed(ctx, chunks)
	if err != nil {
		return "", err
	}
	if len(embeddings) != len(chunks) {
		return "", fmt.Errorf("retrieval: got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	records := make([]Record, len(chunks))
	for i, c := range chunks {
		records[i] = Record{ID: fmt.Sprintf("chunk_%d", i), Text: c, Embedding: embeddings[i]}
	}

	store := NewEphemeral()
	name := snapshotPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	defer func() {
		if err := store.Drop(name); err != nil {
			r.logger.Debug("drop snapshot collection", "collection", name, "error", err)
		}
	}()

	if err := store.Add(ctx, name, records); err != nil {
		return "", err
	}
	found, err := r.search(ctx, store, name, text, k)
	if err != nil {
		return "", err
	}
	r.logger.Debug("canvas snapshot query", "items", len(items), "chunks", len(chunks), "hits", len(found))
	return joinRecords(found), nil
}

func (r *Retriever) search(ctx context.Context, store *Store, collection, text string, k int) ([]Record, error) {
	if k <= 0 {
		k = r.cfg.TopK
	}
	if store.Count(collection) == 0 {
		return nil, nil
	}
	vecs, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return store.Query(ctx, collection, vecs[0], k)
}

func joinRecords(records []Record) string {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	return strings.Join(texts, "\n")
}

// BuildFromTexts indexes every .txt file in dir into the persisted
// collection, with ids "<file>_<i>". It returns the number of chunks added.
func (r *Retriever) BuildFromTexts(ctx context.Context, dir string) (int, error) {
	if r.store == nil {
		return 0, fmt.Errorf("retrieval: no persisted store")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("retrieval: read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return total, fmt.Errorf("retrieval: read %s: %w", name, err)
		}
		chunks := r.docs.Split(string(data))
		if len(chunks) == 0 {
			continue
		}
		embeddings, err := r.embedder.Embed(ctx, chunks)
		if err != nil {
			return total, fmt.Errorf("retrieval: embed %s: %w", name, err)
		}
		if len(embeddings) != len(chunks) {
			return total, fmt.Errorf("retrieval: embed %s: got %d embeddings for %d chunks", name, len(embeddings), len(chunks))
		}
		records := make([]Record, len(chunks))
		for i, c := range chunks {
			records[i] = Record{ID: fmt.Sprintf("%s_%d", name, i), Text: c, Embedding: embeddings[i]}
		}
		if err := r.store.Add(ctx, r.cfg.Collection, records); err != nil {
			return total, err
		}
		r.logger.Info("indexed file", "file", name, "chunks", len(chunks))
		total += len(chunks)
	}
	return total, nil
}
