package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/vectorstores"
)

// Retriever returns the documents relevant to a query, most relevant first.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// FilteredRetriever narrows retrieval with a metadata filter. Filter semantics
// are those of the underlying store; the stores in rag/store match on equality.
type FilteredRetriever interface {
	Retriever
	RetrieveWithFilter(ctx context.Context, query string, filter map[string]any) ([]Document, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string) ([]Document, error)

// Retrieve implements Retriever.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string) ([]Document, error) {
	return f(ctx, query)
}

// VectorStoreRetriever retrieves from any langchaingo vector store.
type VectorStoreRetriever struct {
	store          vectorstores.VectorStore
	topK           int
	scoreThreshold float32
	namespace      string
}

var _ FilteredRetriever = (*VectorStoreRetriever)(nil)

// RetrieverOption configures a VectorStoreRetriever.
type RetrieverOption func(*VectorStoreRetriever)

// WithTopK sets the number of documents returned (default 4).
func WithTopK(k int) RetrieverOption {
	return func(r *VectorStoreRetriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithScoreThreshold drops documents scoring below threshold.
func WithScoreThreshold(threshold float32) RetrieverOption {
	return func(r *VectorStoreRetriever) {
		r.scoreThreshold = threshold
	}
}

// WithNamespace restricts retrieval to a namespace of the store.
func WithNamespace(ns string) RetrieverOption {
	return func(r *VectorStoreRetriever) {
		r.namespace = ns
	}
}

// NewVectorStoreRetriever creates a retriever over store.
func NewVectorStoreRetriever(store vectorstores.VectorStore, opts ...RetrieverOption) *VectorStoreRetriever {
	r := &VectorStoreRetriever{store: store, topK: 4}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve implements Retriever.
func (r *VectorStoreRetriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	return r.search(ctx, query)
}

// RetrieveWithFilter implements FilteredRetriever.
func (r *VectorStoreRetriever) RetrieveWithFilter(ctx context.Context, query string, filter map[string]any) ([]Document, error) {
	if len(filter) == 0 {
		return r.search(ctx, query)
	}
	return r.search(ctx, query, vectorstores.WithFilters(filter))
}

func (r *VectorStoreRetriever) search(ctx context.Context, query string, extra ...vectorstores.Option) ([]Document, error) {
	opts := make([]vectorstores.Option, 0, len(extra)+2)
	if r.scoreThreshold > 0 {
		opts = append(opts, vectorstores.WithScoreThreshold(r.scoreThreshold))
	}
	if r.namespace != "" {
		opts = append(opts, vectorstores.WithNameSpace(r.namespace))
	}
	opts = append(opts, extra...)

	docs, err := r.store.SimilaritySearch(ctx, query, r.topK, opts...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return FromSchemaDocuments(docs), nil
}

// AddDocuments stores docs in a langchaingo vector store and returns their ids.
func AddDocuments(ctx context.Context, store vectorstores.VectorStore, docs []Document, opts ...vectorstores.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	ids, err := store.AddDocuments(ctx, ToSchemaDocuments(docs), opts...)
	if err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}
	return ids, nil
}
