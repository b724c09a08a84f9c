// Package openaiembed is a langchaingo embeddings client for OpenAI-compatible
// embedding endpoints, built on go-openai.
package openaiembed

import (
	"context"
	"fmt"
	"os"
	"sort"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/embeddings"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "text-embedding-3-small"

// Client implements embeddings.EmbedderClient.
type Client struct {
	client *goopenai.Client
	model  string
}

var _ embeddings.EmbedderClient = (*Client)(nil)

// Option configures a Client.
type Option func(*goopenai.ClientConfig, *Client)

// WithBaseURL points the client at another OpenAI-compatible server.
func WithBaseURL(baseURL string) Option {
	return func(cfg *goopenai.ClientConfig, _ *Client) {
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
	}
}

// WithModel sets the embedding model.
func WithModel(model string) Option {
	return func(_ *goopenai.ClientConfig, c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// New creates a client authenticated with apiKey, or OPENAI_API_KEY when
// apiKey is empty.
func New(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg := goopenai.DefaultConfig(apiKey)
	c := &Client{model: DefaultModel}
	for _, opt := range opts {
		opt(&cfg, c)
	}
	c.client = goopenai.NewClientWithConfig(cfg)
	return c
}

// CreateEmbedding embeds texts in one request, preserving their order.
func (c *Client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// NewEmbedder wraps a Client in langchaingo's batching embedder.
func NewEmbedder(apiKey string, opts ...Option) (*embeddings.EmbedderImpl, error) {
	return embeddings.NewEmbedder(New(apiKey, opts...))
}
