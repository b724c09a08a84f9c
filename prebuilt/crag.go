package prebuilt

import (
	"context"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/tool"
	"github.com/tmc/langchaingo/llms"
)

// CRAGConfig configures corrective RAG.
type CRAGConfig struct {
	Model llms.Model
	// GraderModel grades documents; defaults to Model.
	GraderModel llms.Model
	Retriever   rag.Retriever
	Searcher    tool.WebSearcher
	// Policy decides when to fall back to web search; defaults to AnyIrrelevant.
	Policy RelevancePolicy
}

// NewCorrectiveRAG builds the corrective RAG workflow:
//
//	retrieve -> grade_documents -> transform_query -> web_search -> generate -> END
//	                            \-> generate -> END
//
// Irrelevant documents are dropped and, when the policy asks for correction,
// the question is rewritten and web results are added before generating.
func NewCorrectiveRAG(cfg CRAGConfig) (*graph.StateRunnable[RAGState], error) {
	if cfg.Policy == nil {
		cfg.Policy = AnyIrrelevant
	}
	n := newRAGNodes(cfg.Model, cfg.GraderModel, cfg.Retriever, cfg.Searcher, cfg.Policy, 0)
	if err := n.check(true, true); err != nil {
		return nil, err
	}

	g, err := graph.Define(graph.Definition[RAGState]{
		Nodes: []graph.Node[RAGState]{
			{Name: NodeRetrieve, Description: "Retrieve documents from the vector store", Function: n.retrieve},
			{Name: NodeGradeDocuments, Description: "Grade document relevance", Function: n.gradeDocuments},
			{Name: NodeTransformQuery, Description: "Rewrite the question for web search", Function: n.transformQuery},
			{Name: NodeWebSearch, Description: "Supplement documents with web results", Function: n.webSearch},
			{Name: NodeGenerate, Description: "Generate the answer", Function: n.generate},
		},
		Edges: []graph.Edge{
			{From: NodeRetrieve, To: NodeGradeDocuments},
			{From: NodeTransformQuery, To: NodeWebSearch},
			{From: NodeWebSearch, To: NodeGenerate},
			{From: NodeGenerate, To: graph.END},
		},
		ConditionalEdges: []graph.ConditionalEdge[RAGState]{
			{
				From: NodeGradeDocuments,
				Router: func(_ context.Context, s RAGState) string {
					if isTrue(s.NeedsCorrection) {
						return NodeTransformQuery
					}
					return NodeGenerate
				},
				Targets: []string{NodeTransformQuery, NodeGenerate},
			},
		},
		Start: NodeRetrieve,
	})
	if err != nil {
		return nil, err
	}

	r, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return r.WithName("crag"), nil
}
