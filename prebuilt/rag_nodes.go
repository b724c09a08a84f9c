package prebuilt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/llm"
	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/tool"
	"github.com/tmc/langchaingo/llms"
)

// DefaultMaxRetries bounds the correction loops of self-RAG and adaptive RAG.
const DefaultMaxRetries = 3

var errMissingCollaborator = errors.New("prebuilt: missing collaborator")

// ragNodes holds the collaborators shared by the node functions of the RAG workflows.
type ragNodes struct {
	model      llms.Model
	grader     llms.Model
	retriever  rag.Retriever
	searcher   tool.WebSearcher
	policy     RelevancePolicy
	maxRetries int
}

func newRAGNodes(model, grader llms.Model, retriever rag.Retriever, searcher tool.WebSearcher, policy RelevancePolicy, maxRetries int) *ragNodes {
	if grader == nil {
		grader = model
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &ragNodes{
		model:      model,
		grader:     grader,
		retriever:  retriever,
		searcher:   searcher,
		policy:     policy,
		maxRetries: maxRetries,
	}
}

func (n *ragNodes) check(needSearch, needRetriever bool) error {
	switch {
	case n.model == nil:
		return fmt.Errorf("%w: model", errMissingCollaborator)
	case needRetriever && n.retriever == nil:
		return fmt.Errorf("%w: retriever", errMissingCollaborator)
	case needSearch && n.searcher == nil:
		return fmt.Errorf("%w: web searcher", errMissingCollaborator)
	}
	return nil
}

func (n *ragNodes) retrieve(ctx context.Context, s RAGState) (RAGState, error) {
	docs, err := n.retriever.Retrieve(ctx, s.Question)
	if err != nil {
		return RAGState{}, fmt.Errorf("retrieve: %w", err)
	}
	if docs == nil {
		docs = []rag.Document{}
	}
	return RAGState{Documents: docs, Queries: []string{s.Question}}, nil
}

// gradeDocuments keeps the relevant documents and applies the relevance policy.
func (n *ragNodes) gradeDocuments(ctx context.Context, s RAGState) (RAGState, error) {
	grader := llm.NewStructuredOutput[llm.BinaryScore](n.grader)
	kept := make([]rag.Document, 0, len(s.Documents))
	for _, d := range s.Documents {
		human := fmt.Sprintf("Retrieved document:\n\n%s\n\nUser question: %s", d.Content, s.Question)
		score, err := grader.Generate(ctx, gradeDocumentPrompt, human)
		if err != nil {
			return RAGState{}, fmt.Errorf("grade document %s: %w", d.ID, err)
		}
		if score.Yes() {
			kept = append(kept, d)
		}
	}
	return RAGState{
		Documents:       kept,
		NeedsCorrection: boolPtr(n.policy(len(kept), len(s.Documents))),
	}, nil
}

func (n *ragNodes) transformQuery(ctx context.Context, s RAGState) (RAGState, error) {
	human := fmt.Sprintf("Here is the initial question:\n\n%s\n\nFormulate an improved question.", s.Question)
	out, err := llm.Generate(ctx, n.model, rewriteQuestionPrompt, human)
	if err != nil {
		return RAGState{}, fmt.Errorf("rewrite question: %w", err)
	}
	q := strings.TrimSpace(out)
	if q == "" {
		q = s.Question
	}
	return RAGState{Question: q, Retries: s.Retries + 1}, nil
}

// webSearch adds search results to the kept documents.
func (n *ragNodes) webSearch(ctx context.Context, s RAGState) (RAGState, error) {
	results, err := n.searcher.Search(ctx, s.Question)
	if err != nil {
		return RAGState{}, fmt.Errorf("web search: %w", err)
	}
	docs := append(slices.Clone(s.Documents), tool.ToDocuments(results)...)
	if docs == nil {
		docs = []rag.Document{}
	}
	return RAGState{Documents: docs, Queries: []string{s.Question}}, nil
}

func (n *ragNodes) generate(ctx context.Context, s RAGState) (RAGState, error) {
	human := fmt.Sprintf("Question: %s\n\nContext:\n%s\n\nAnswer:", s.Question, rag.FormatDocuments(s.Documents))
	out, err := llm.Generate(ctx, n.model, generatePrompt, human)
	if err != nil {
		return RAGState{}, fmt.Errorf("generate answer: %w", err)
	}
	update := RAGState{Generation: strings.TrimSpace(out)}
	// A previous answer was rejected as ungrounded: this is a regeneration.
	if s.Grounded != nil && !*s.Grounded {
		update.Retries = s.Retries + 1
	}
	return update, nil
}

// gradeGeneration checks that the answer is grounded in the documents and,
// if so, that it addresses the question.
func (n *ragNodes) gradeGeneration(ctx context.Context, s RAGState) (RAGState, error) {
	grader := llm.NewStructuredOutput[llm.BinaryScore](n.grader)

	human := fmt.Sprintf("Set of facts:\n\n%s\n\nLLM generation: %s", rag.FormatDocuments(s.Documents), s.Generation)
	grounded, err := grader.Generate(ctx, hallucinationPrompt, human)
	if err != nil {
		return RAGState{}, fmt.Errorf("grade hallucination: %w", err)
	}
	if !grounded.Yes() {
		return RAGState{Grounded: boolPtr(false), Useful: boolPtr(false)}, nil
	}

	human = fmt.Sprintf("User question:\n\n%s\n\nLLM generation: %s", s.Question, s.Generation)
	useful, err := grader.Generate(ctx, answerPrompt, human)
	if err != nil {
		return RAGState{}, fmt.Errorf("grade answer: %w", err)
	}
	return RAGState{Grounded: boolPtr(true), Useful: boolPtr(useful.Yes())}, nil
}

// decideToGenerate rewrites the question while the policy asks for correction
// and retries remain.
func (n *ragNodes) decideToGenerate(_ context.Context, s RAGState) string {
	if isTrue(s.NeedsCorrection) && s.Retries < n.maxRetries {
		return NodeTransformQuery
	}
	return NodeGenerate
}

// decideAfterGrading accepts a grounded, useful answer. Otherwise it regenerates
// an ungrounded answer or rewrites the question, until retries run out.
func (n *ragNodes) decideAfterGrading(_ context.Context, s RAGState) string {
	if isTrue(s.Grounded) && isTrue(s.Useful) {
		return graph.END
	}
	if s.Retries >= n.maxRetries {
		return graph.END
	}
	if !isTrue(s.Grounded) {
		return NodeGenerate
	}
	return NodeTransformQuery
}
