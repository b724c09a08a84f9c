package prebuilt

import (
	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/rag"
	"github.com/tmc/langchaingo/llms"
)

// SelfRAGConfig configures self-reflective RAG.
type SelfRAGConfig struct {
	Model       llms.Model
	GraderModel llms.Model
	Retriever   rag.Retriever
	// Policy decides when to rewrite the question; defaults to NoneRelevant.
	Policy RelevancePolicy
	// MaxRetries bounds rewrites plus regenerations; defaults to DefaultMaxRetries.
	MaxRetries int
}

// NewSelfRAG builds the self-reflective RAG workflow. Documents are graded
// before generation and the answer is graded after it: an ungrounded answer
// is regenerated and an unhelpful one sends the question back through a rewrite.
func NewSelfRAG(cfg SelfRAGConfig) (*graph.StateRunnable[RAGState], error) {
	if cfg.Policy == nil {
		cfg.Policy = NoneRelevant
	}
	n := newRAGNodes(cfg.Model, cfg.GraderModel, cfg.Retriever, nil, cfg.Policy, cfg.MaxRetries)
	if err := n.check(false, true); err != nil {
		return nil, err
	}

	g := graph.NewStateGraph[RAGState]()
	g.AddNode(NodeRetrieve, "Retrieve documents from the vector store", n.retrieve)
	g.SetEntryPoint(NodeRetrieve)
	addSelfRAGTail(g, n)

	r, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return r.WithName("self-rag"), nil
}

// addSelfRAGTail adds every self-RAG node after retrieve.
func addSelfRAGTail(g *graph.StateGraph[RAGState], n *ragNodes) {
	g.AddNode(NodeGradeDocuments, "Grade document relevance", n.gradeDocuments)
	g.AddNode(NodeTransformQuery, "Rewrite the question", n.transformQuery)
	g.AddNode(NodeGenerate, "Generate the answer", n.generate)
	g.AddNode(NodeGradeGeneration, "Grade the answer against documents and question", n.gradeGeneration)

	g.AddEdge(NodeRetrieve, NodeGradeDocuments)
	g.AddConditionalEdge(NodeGradeDocuments, n.decideToGenerate, NodeTransformQuery, NodeGenerate)
	g.AddEdge(NodeTransformQuery, NodeRetrieve)
	g.AddEdge(NodeGenerate, NodeGradeGeneration)
	g.AddConditionalEdge(NodeGradeGeneration, n.decideAfterGrading, NodeGenerate, NodeTransformQuery)
}
