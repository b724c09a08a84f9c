package prebuilt

import (
	"context"
	"fmt"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/llm"
	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/tool"
	"github.com/tmc/langchaingo/llms"
)

// DefaultTopics describes the vector store to the question router.
const DefaultTopics = "agents, prompt engineering, and adversarial attacks"

// AdaptiveRAGConfig configures adaptive RAG.
type AdaptiveRAGConfig struct {
	Model       llms.Model
	GraderModel llms.Model
	Retriever   rag.Retriever
	Searcher    tool.WebSearcher
	// Topics tells the router what the vector store covers.
	Topics     string
	Policy     RelevancePolicy
	MaxRetries int
}

// NewAdaptiveRAG builds a workflow that first routes the question to web search
// or the vector store, then continues as self-RAG. Web results go straight to
// generation.
func NewAdaptiveRAG(cfg AdaptiveRAGConfig) (*graph.StateRunnable[RAGState], error) {
	if cfg.Policy == nil {
		cfg.Policy = NoneRelevant
	}
	if cfg.Topics == "" {
		cfg.Topics = DefaultTopics
	}
	n := newRAGNodes(cfg.Model, cfg.GraderModel, cfg.Retriever, cfg.Searcher, cfg.Policy, cfg.MaxRetries)
	if err := n.check(true, true); err != nil {
		return nil, err
	}
	router := llm.NewStructuredOutput[llm.RouteQuery](n.grader)
	system := fmt.Sprintf(routeQuestionPrompt, cfg.Topics)

	g := graph.NewStateGraph[RAGState]()
	g.AddNode(NodeRouteQuestion, "Route the question to a datasource", func(ctx context.Context, s RAGState) (RAGState, error) {
		route, err := router.Generate(ctx, system, s.Question)
		if err != nil {
			return RAGState{}, fmt.Errorf("route question: %w", err)
		}
		return RAGState{Datasource: route.Normalized()}, nil
	})
	g.AddNode(NodeWebSearch, "Search the web", n.webSearch)
	g.AddNode(NodeRetrieve, "Retrieve documents from the vector store", n.retrieve)
	addSelfRAGTail(g, n)

	g.SetEntryPoint(NodeRouteQuestion)
	g.AddConditionalEdge(NodeRouteQuestion, func(_ context.Context, s RAGState) string {
		if s.Datasource == llm.DatasourceWebSearch {
			return NodeWebSearch
		}
		return NodeRetrieve
	}, NodeWebSearch, NodeRetrieve)
	g.AddEdge(NodeWebSearch, NodeGenerate)

	r, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return r.WithName("adaptive-rag"), nil
}
