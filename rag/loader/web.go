package loader

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/smallnest/ragflow/rag"
)

// WebLoader fetches pages and extracts their visible text.
type WebLoader struct {
	urls   []string
	client *http.Client
	// Selector limits extraction to matching elements; defaults to "body".
	Selector string
}

// NewWebLoader creates a loader for urls using a client with a 30s timeout.
func NewWebLoader(urls ...string) *WebLoader {
	return &WebLoader{
		urls:     urls,
		client:   &http.Client{Timeout: 30 * time.Second},
		Selector: "body",
	}
}

// WithHTTPClient replaces the HTTP client.
func (l *WebLoader) WithHTTPClient(client *http.Client) *WebLoader {
	l.client = client
	return l
}

// Load fetches every URL in order. The first failure aborts the load.
func (l *WebLoader) Load(ctx context.Context) ([]rag.Document, error) {
	docs := make([]rag.Document, 0, len(l.urls))
	for _, u := range l.urls {
		d, err := l.fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (l *WebLoader) fetch(ctx context.Context, url string) (rag.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return rag.Document{}, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "ragflow/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return rag.Document{}, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rag.Document{}, fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	page, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return rag.Document{}, fmt.Errorf("failed to parse %s: %w", url, err)
	}
	page.Find("script, style, noscript").Remove()

	selector := l.Selector
	if selector == "" {
		selector = "body"
	}
	var parts []string
	page.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := normalizeSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	d := rag.Document{
		ID:      url,
		Content: strings.Join(parts, "\n\n"),
		Source:  url,
	}
	if title := strings.TrimSpace(page.Find("title").First().Text()); title != "" {
		d = d.WithMetadata("title", title)
	}
	return d, nil
}

// normalizeSpace collapses runs of blank lines and trims every line.
func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
