package knowledge

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Embedder turns text into vectors. Implementations must be safe for
// concurrent use.
type Embedder interface {
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model names the embedding model, recorded in the index for
	// staleness comparison.
	Model() string
}

// OllamaEmbedder embeds through a local Ollama server.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

func NewOllamaEmbedder(baseURL, model string) (*OllamaEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "bge-m3"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &OllamaEmbedder{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}, nil
}

func (e *OllamaEmbedder) Model() string { return e.model }

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("Embedding failed: %v", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("Embedding count mismatch")
	}
	return resp.Embeddings, nil
}

// normalizeEmbedding scales v to unit length in place and returns the
// original norm. A zero vector is left untouched.
func normalizeEmbedding(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
	return norm
}
