package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// TavilySearch searches the web through the Tavily API.
type TavilySearch struct {
	APIKey      string
	BaseURL     string
	MaxResults  int
	SearchDepth string
	client      *http.Client
}

var _ SearchTool = (*TavilySearch)(nil)

type TavilyOption func(*TavilySearch)

// WithTavilyBaseURL sets the API endpoint.
func WithTavilyBaseURL(baseURL string) TavilyOption {
	return func(t *TavilySearch) {
		t.BaseURL = baseURL
	}
}

// WithTavilyMaxResults sets the number of results to return.
func WithTavilyMaxResults(n int) TavilyOption {
	return func(t *TavilySearch) {
		if n > 0 {
			t.MaxResults = n
		}
	}
}

// WithTavilySearchDepth sets "basic" or "advanced" search.
func WithTavilySearchDepth(depth string) TavilyOption {
	return func(t *TavilySearch) {
		t.SearchDepth = depth
	}
}

// WithTavilyHTTPClient replaces the HTTP client.
func WithTavilyHTTPClient(client *http.Client) TavilyOption {
	return func(t *TavilySearch) {
		t.client = client
	}
}

// NewTavilySearch creates a Tavily client.
// If apiKey is empty, it tries to read from TAVILY_API_KEY environment variable.
func NewTavilySearch(apiKey string, opts ...TavilyOption) (*TavilySearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("TAVILY_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("TAVILY_API_KEY not set")
	}

	t := &TavilySearch{
		APIKey:      apiKey,
		BaseURL:     "https://api.tavily.com/search",
		MaxResults:  3,
		SearchDepth: "basic",
		client:      http.DefaultClient,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *TavilySearch) Name() string {
	return "Tavily_Search"
}

func (t *TavilySearch) Description() string {
	return "A search engine optimized for comprehensive, accurate, and trusted results. " +
		"Useful for answering questions about current events. " +
		"Input should be a search query."
}

// Call implements tools.Tool.
func (t *TavilySearch) Call(ctx context.Context, input string) (string, error) {
	results, err := t.Search(ctx, input)
	if err != nil {
		return "", err
	}
	return formatResults(results), nil
}

type tavilyResponse struct {
	Results []SearchResult `json:"results"`
}

// Search implements WebSearcher.
func (t *TavilySearch) Search(ctx context.Context, query string) ([]SearchResult, error) {
	body, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      t.APIKey,
		"search_depth": t.SearchDepth,
		"max_results":  t.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result tavilyResponse
	if err := doJSON(t.client, req, "tavily", &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}
