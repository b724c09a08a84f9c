// Package tool provides web search clients usable both directly by workflows and
// as langchaingo tools by agents.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/smallnest/ragflow/rag"
	"github.com/tmc/langchaingo/tools"
)

// SearchResult is a single web search hit.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// WebSearcher searches the web.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// SearchTool is a WebSearcher that is also a langchaingo tool.
type SearchTool interface {
	WebSearcher
	tools.Tool
}

// ToDocuments converts results to documents whose Source is the result URL.
func ToDocuments(results []SearchResult) []rag.Document {
	docs := make([]rag.Document, 0, len(results))
	for _, r := range results {
		d := rag.Document{
			ID:      r.URL,
			Content: r.Content,
			Source:  r.URL,
			Score:   float32(r.Score),
		}
		if r.Title != "" {
			d = d.WithMetadata("title", r.Title)
		}
		docs = append(docs, d)
	}
	return docs
}

// formatResults renders results for a tool observation.
func formatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found"
	}
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. Title: %s\nURL: %s\nContent: %s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return sb.String()
}

// APIError is a non-200 answer from a search provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s api returned status: %d", e.Provider, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// doJSON sends req and decodes a 200 JSON answer into out.
func doJSON(client *http.Client, req *http.Request, provider string, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", provider, err)
	}
	return nil
}
