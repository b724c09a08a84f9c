// Package store provides langchaingo vector stores: an in-memory store for
// development and tests and a pgvector store on PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// ErrNoEmbedder is returned when neither the store nor the call options carry an embedder.
var ErrNoEmbedder = errors.New("vector store: no embedder configured")

type entry struct {
	id        string
	namespace string
	doc       schema.Document
	vector    []float32
}

// InMemoryVectorStore is a vectorstores.VectorStore kept in process memory.
// Similarity is cosine; filters match metadata values by equality.
type InMemoryVectorStore struct {
	embedder embeddings.Embedder

	mu      sync.RWMutex
	entries []entry
	// index maps an entry id to its position in entries.
	index map[string]int
}

var _ vectorstores.VectorStore = (*InMemoryVectorStore)(nil)

// NewInMemoryVectorStore creates an empty store.
func NewInMemoryVectorStore(embedder embeddings.Embedder) *InMemoryVectorStore {
	return &InMemoryVectorStore{embedder: embedder, index: make(map[string]int)}
}

func (s *InMemoryVectorStore) options(opts []vectorstores.Option) (vectorstores.Options, embeddings.Embedder, error) {
	o := vectorstores.Options{}
	for _, opt := range opts {
		opt(&o)
	}
	e := o.Embedder
	if e == nil {
		e = s.embedder
	}
	if e == nil {
		return o, nil, ErrNoEmbedder
	}
	return o, e, nil
}

// AddDocuments embeds and stores docs. The id of each document is taken from its
// "id" metadata when present, otherwise a new UUID is assigned.
func (s *InMemoryVectorStore) AddDocuments(ctx context.Context, docs []schema.Document, opts ...vectorstores.Option) ([]string, error) {
	o, embedder, err := s.options(opts)
	if err != nil {
		return nil, err
	}

	kept := make([]schema.Document, 0, len(docs))
	for _, d := range docs {
		if o.Deduplicater != nil && o.Deduplicater(ctx, d) {
			continue
		}
		kept = append(kept, d)
	}
	if len(kept) == 0 {
		return []string{}, nil
	}

	texts := make([]string, len(kept))
	for i, d := range kept {
		texts[i] = d.PageContent
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(kept) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(kept))
	}

	ids := make([]string, len(kept))
	added := make([]entry, len(kept))
	for i, d := range kept {
		id, _ := d.Metadata["id"].(string)
		if id == "" {
			id = uuid.NewString()
		}
		md := make(map[string]any, len(d.Metadata)+1)
		maps.Copy(md, d.Metadata)
		md["id"] = id

		ids[i] = id
		added[i] = entry{
			id:        id,
			namespace: o.NameSpace,
			doc:       schema.Document{PageContent: d.PageContent, Metadata: md},
			vector:    vectors[i],
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range added {
		s.upsert(e)
	}
	return ids, nil
}

func (s *InMemoryVectorStore) upsert(e entry) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[e.id]; ok {
		s.entries[i] = e
		return
	}
	s.index[e.id] = len(s.entries)
	s.entries = append(s.entries, e)
}

// SimilaritySearch returns up to numDocuments documents ordered by descending score.
func (s *InMemoryVectorStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, opts ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return nil, fmt.Errorf("numDocuments must be positive")
	}
	o, embedder, err := s.options(opts)
	if err != nil {
		return nil, err
	}
	filter, err := equalityFilter(o.Filters)
	if err != nil {
		return nil, err
	}

	q, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	var results []schema.Document
	for _, e := range s.entries {
		if e.namespace != o.NameSpace || !matches(e.doc.Metadata, filter) {
			continue
		}
		score := cosineSimilarity(q, e.vector)
		if o.ScoreThreshold > 0 && score < o.ScoreThreshold {
			continue
		}
		d := e.doc
		d.Metadata = maps.Clone(e.doc.Metadata)
		d.Score = score
		results = append(results, d)
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > numDocuments {
		results = results[:numDocuments]
	}
	return results, nil
}

// Delete removes documents by id.
func (s *InMemoryVectorStore) Delete(_ context.Context, ids ...string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if !drop[e.id] {
			kept = append(kept, e)
		}
	}
	clear(s.entries[len(kept):])
	s.entries = kept

	s.index = make(map[string]int, len(kept))
	for i, e := range kept {
		s.index[e.id] = i
	}
	return nil
}

// Len returns the number of stored documents.
func (s *InMemoryVectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func equalityFilter(filters any) (map[string]any, error) {
	switch f := filters.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return f, nil
	case map[string]string:
		out := make(map[string]any, len(f))
		for k, v := range f {
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported filter type %T", filters)
	}
}

func matches(md, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := md[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
