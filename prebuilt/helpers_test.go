package prebuilt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/llm/llmtest"
	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/tool"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeGrader answers the grading and routing prompts. Empty verdict lists mean "yes".
type fakeGrader struct {
	relevant func(human string) bool
	grounded []string
	useful   []string
	route    string

	mu       sync.Mutex
	gCalls   int
	uCalls   int
	docCalls int
}

func (g *fakeGrader) model() llmtest.FuncModel {
	return func(_ context.Context, msgs []llms.MessageContent, _ llms.CallOptions) (string, error) {
		g.mu.Lock()
		defer g.mu.Unlock()

		system := llmtest.PromptText(msgs[:1])
		human := llmtest.PromptText(msgs[1:])
		switch {
		case strings.Contains(system, "relevance of a retrieved document"):
			g.docCalls++
			return score(g.relevant == nil || g.relevant(human)), nil
		case strings.Contains(system, "grounded in"):
			v := verdict(g.grounded, g.gCalls)
			g.gCalls++
			return fmt.Sprintf(`{"binary_score": %q}`, v), nil
		case strings.Contains(system, "addresses / resolves"):
			v := verdict(g.useful, g.uCalls)
			g.uCalls++
			return fmt.Sprintf(`{"binary_score": %q}`, v), nil
		case strings.Contains(system, "routing a user question"):
			return fmt.Sprintf(`{"datasource": %q}`, g.route), nil
		}
		return "", fmt.Errorf("unexpected prompt: %s", system)
	}
}

func verdict(vs []string, i int) string {
	if len(vs) == 0 {
		return "yes"
	}
	return vs[min(i, len(vs)-1)]
}

func score(yes bool) string {
	if yes {
		return `{"binary_score": "yes"}`
	}
	return `{"binary_score": "no"}`
}

// fakeWriter rewrites questions and writes numbered answers.
type fakeWriter struct {
	mu       sync.Mutex
	rewrites int
	answers  int
}

func (w *fakeWriter) model() llmtest.FuncModel {
	return func(_ context.Context, msgs []llms.MessageContent, _ llms.CallOptions) (string, error) {
		w.mu.Lock()
		defer w.mu.Unlock()

		system := llmtest.PromptText(msgs[:1])
		switch {
		case strings.Contains(system, "question re-writer"):
			w.rewrites++
			return fmt.Sprintf("rewritten question %d", w.rewrites), nil
		case strings.Contains(system, "question-answering"):
			w.answers++
			return fmt.Sprintf("answer %d", w.answers), nil
		}
		return "", fmt.Errorf("unexpected prompt: %s", system)
	}
}

type fakeSearcher struct {
	queries []string
	err     error
}

func (s *fakeSearcher) Search(_ context.Context, query string) ([]tool.SearchResult, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return []tool.SearchResult{{Title: "Web", URL: "https://example.com/web", Content: "web content about " + query}}, nil
}

func staticRetriever(docs ...rag.Document) rag.Retriever {
	return rag.RetrieverFunc(func(context.Context, string) ([]rag.Document, error) {
		return docs, nil
	})
}

// runNodes streams a run and returns the visited nodes and the final state.
func runNodes[S any](t *testing.T, r *graph.StateRunnable[S], initial S) ([]string, S) {
	t.Helper()
	updates, final, err := r.Stream(context.Background(), initial, nil).Collect()
	require.NoError(t, err)
	nodes := make([]string, len(updates))
	for i, u := range updates {
		nodes[i] = u.Node
	}
	return nodes, final
}
