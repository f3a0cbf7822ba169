package retrieval

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	generativelanguage "google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"
)

// Embedding providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"

	DefaultGeminiModel = "models/text-embedding-004"
	DefaultOpenAIModel = string(openai.SmallEmbedding3)

	// geminiBatchLimit is the maximum number of requests per batchEmbedContents call.
	geminiBatchLimit = 100
)

// ErrNoAPIKey is returned when an embedder is built without credentials.
var ErrNoAPIKey = errors.New("retrieval: API key required")

// Embedder turns texts into vectors. The same embedder is used for
// indexing and querying.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GeminiEmbedder calls the Generative Language embedding endpoint.
type GeminiEmbedder struct {
	svc     *generativelanguage.Service
	model   string
	limiter *rate.Limiter
}

// NewGeminiEmbedder creates an embedder limited to rps batch calls per second.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, rps float64, opts ...option.ClientOption) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := generativelanguage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("retrieval: create gemini service: %w", err)
	}
	return &GeminiEmbedder{svc: svc, model: model, limiter: newLimiter(rps)}, nil
}

// Embed embeds texts in batches.
func (g *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(texts))

		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req := &generativelanguage.BatchEmbedContentsRequest{}
		for _, text := range texts[start:end] {
			req.Requests = append(req.Requests, &generativelanguage.EmbedContentRequest{
				Model: g.model,
				Content: &generativelanguage.Content{
					Parts: []*generativelanguage.Part{{Text: text}},
				},
			})
		}

		resp, err := g.svc.Models.BatchEmbedContents(g.model, req).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("retrieval: gemini embed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("retrieval: gemini embed: got %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			out = append(out, toFloat32(e.Values))
		}
	}
	return out, nil
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	limiter *rate.Limiter
}

// NewOpenAIEmbedder creates an embedder. baseURL may be empty.
func NewOpenAIEmbedder(apiKey, baseURL, model string, rps float64) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(cfg),
		model:   openai.EmbeddingModel(model),
		limiter: newLimiter(rps),
	}, nil
}

// Embed embeds texts in one request.
func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: o.model,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("retrieval: openai embed: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("retrieval: openai embed: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// HashEmbedder is an offline bag-of-words embedder: each lowercased word is
// hashed into one of Dims buckets. Useful for dry runs and tests.
type HashEmbedder struct {
	Dims int
}

// Embed hashes each text into a normalized vector.
func (h HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	dims := h.Dims
	if dims <= 0 {
		dims = 256
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dims)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			f := fnv.New32a()
			_, _ = f.Write([]byte(w))
			vec[f.Sum32()%uint32(dims)]++
		}
		normalize(vec)
		out[i] = vec
	}
	return out, ctx.Err()
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		v[0] = 1
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
