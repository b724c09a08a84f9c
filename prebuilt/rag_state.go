// Package prebuilt provides ready-made workflows built on package graph:
// corrective, self-reflective and adaptive RAG, reflection, supervisor,
// plan-and-execute, ReAct and a translation chain.
package prebuilt

import (
	"github.com/smallnest/ragflow/rag"
)

// Node names shared by the RAG workflows.
const (
	NodeRouteQuestion   = "route_question"
	NodeRetrieve        = "retrieve"
	NodeGradeDocuments  = "grade_documents"
	NodeTransformQuery  = "transform_query"
	NodeWebSearch       = "web_search"
	NodeGenerate        = "generate"
	NodeGradeGeneration = "grade_generation"
)

// RAGState is the state of the RAG workflows. Optional flags are pointers so
// that a node can set them to false.
type RAGState struct {
	Question string `json:"question"`
	// Documents is replaced as a whole; grading returns the kept subset.
	Documents  []rag.Document `json:"documents,omitempty"`
	Generation string         `json:"generation,omitempty"`
	// NeedsCorrection is set by grading when the kept documents are not
	// enough to answer; see RelevancePolicy.
	NeedsCorrection *bool `json:"needs_correction,omitempty"`
	// Datasource is the adaptive router's choice.
	Datasource string `json:"datasource,omitempty"`
	Grounded   *bool  `json:"grounded,omitempty"`
	Useful     *bool  `json:"useful,omitempty"`
	// Retries counts query rewrites and regenerations.
	Retries int `json:"retries,omitempty"`
	// Queries records every question sent to retrieval or search.
	Queries []string `json:"queries,omitempty" reducer:"append"`
}

// RelevancePolicy reports whether a graded document set needs correction
// (a rewritten query, more retrieval or web search), given how many of total
// retrieved documents were graded relevant.
type RelevancePolicy func(relevant, total int) bool

// AnyIrrelevant asks for correction as soon as one document is irrelevant or
// nothing was retrieved.
func AnyIrrelevant(relevant, total int) bool {
	return total == 0 || relevant < total
}

// NoneRelevant asks for correction only when no document is relevant.
func NoneRelevant(relevant, _ int) bool {
	return relevant == 0
}

func boolPtr(b bool) *bool {
	return &b
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
