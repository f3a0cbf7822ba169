package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-medforce/pkg/board"
)

type fakeLister struct {
	items []board.Item
	err   error
	calls int
}

func (f *fakeLister) ListItems(ctx context.Context) ([]board.Item, error) {
	f.calls++
	return f.items, f.err
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("quota exceeded")
}

func TestQuery_EmptyIndex(t *testing.T) {
	store, err := OpenPersistent(t.TempDir())
	require.NoError(t, err)

	r := New(DefaultConfig(), store, HashEmbedder{}, nil, nil)
	assert.Equal(t, "", r.Query(context.Background(), "ALT levels", 3))
}

func TestQuery_NilStoreAndLister(t *testing.T) {
	r := New(DefaultConfig(), nil, HashEmbedder{}, nil, nil)
	assert.Equal(t, "", r.Query(context.Background(), "anything", 3))
	assert.Equal(t, "", r.QuerySnapshot(context.Background(), "anything", 3))
}

func TestBuildFromTextsAndQuery(t *testing.T) {
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "labs.txt"),
		[]byte("Alanine aminotransferase ALT peaked at 182 U/L on day 5."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "meds.txt"),
		[]byte("Medication history: amoxicillin clavulanate started two weeks prior."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "notes.md"),
		[]byte("ignored"), 0o644))

	dir := t.TempDir()
	store, err := OpenPersistent(dir)
	require.NoError(t, err)

	r := New(DefaultConfig(), store, HashEmbedder{}, nil, nil)
	n, err := r.BuildFromTexts(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := r.Query(context.Background(), "medication history amoxicillin", 1)
	assert.Contains(t, got, "amoxicillin")

	// k larger than the collection is clamped
	got = r.Query(context.Background(), "ALT", 3)
	assert.Equal(t, 2, len(strings.Split(got, "\n")))

	// reopened store sees the persisted collection
	reopened, err := OpenPersistent(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count(DefaultCollection))
}

func TestQuerySnapshot(t *testing.T) {
	lister := &fakeLister{items: []board.Item{
		{"id": "obj-1", "type": "note", "title": "Patient summary for Sarah Miller"},
		{"id": "obj-2", "type": "lab", "title": "Medication history timeline"},
		{"id": "obj-3", "type": "todo", "title": "Review liver biopsy"},
	}}

	r := New(DefaultConfig(), nil, HashEmbedder{}, lister, nil)
	got := r.QuerySnapshot(context.Background(), "medication history", 1)
	assert.Contains(t, got, "**objectId:** obj-2")
	assert.Equal(t, 1, lister.calls)

	// each call refetches the board
	r.QuerySnapshot(context.Background(), "biopsy", 3)
	assert.Equal(t, 2, lister.calls)
}

func TestQuerySnapshot_Degrades(t *testing.T) {
	lister := &fakeLister{items: []board.Item{{"id": "obj-1"}}}

	r := New(DefaultConfig(), nil, failingEmbedder{}, lister, nil)
	assert.Equal(t, "", r.QuerySnapshot(context.Background(), "anything", 3))

	lister.err = errors.New("board down")
	r = New(DefaultConfig(), nil, HashEmbedder{}, lister, nil)
	assert.Equal(t, "", r.QuerySnapshot(context.Background(), "anything", 3))

	lister.err = nil
	lister.items = nil
	assert.Equal(t, "", r.QuerySnapshot(context.Background(), "anything", 3))
}

func TestQuery_EmbeddingFailureDegrades(t *testing.T) {
	store := NewEphemeral()
	require.NoError(t, store.Add(context.Background(), DefaultCollection, []Record{
		{ID: "a_0", Text: "something", Embedding: []float32{1, 0}},
	}))

	r := New(DefaultConfig(), store, failingEmbedder{}, nil, nil)
	assert.Equal(t, "", r.Query(context.Background(), "something", 3))
}

func TestHashEmbedder(t *testing.T) {
	vecs, err := HashEmbedder{Dims: 32}.Embed(context.Background(), []string{"ALT ALT", "", "bilirubin"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 32)
	}
}

func TestNewEmbedder(t *testing.T) {
	cfg := DefaultConfig()
	_, err := NewEmbedder(context.Background(), cfg, "", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	cfg.Provider = ProviderOpenAI
	_, err = NewEmbedder(context.Background(), cfg, "", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	cfg.Provider = ProviderHash
	e, err := NewEmbedder(context.Background(), cfg, "", "")
	require.NoError(t, err)
	assert.IsType(t, HashEmbedder{}, e)

	cfg.Provider = "bogus"
	_, err = NewEmbedder(context.Background(), cfg, "", "")
	assert.Error(t, err)
}
