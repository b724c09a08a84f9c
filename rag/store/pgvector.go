package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// DBPool is the subset of pgxpool.Pool used by PGVectorStore.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PGVectorOptions configures a PGVectorStore.
type PGVectorOptions struct {
	ConnString string
	TableName  string // Default "documents"
	Dimension  int    // Default 1536
}

// PGVectorStore is a vectorstores.VectorStore backed by PostgreSQL with the
// pgvector extension. Similarity is 1 - cosine distance.
type PGVectorStore struct {
	pool      DBPool
	embedder  embeddings.Embedder
	tableName string
	dimension int
}

var _ vectorstores.VectorStore = (*PGVectorStore)(nil)

// NewPGVectorStore opens a connection pool and returns a store on it.
func NewPGVectorStore(ctx context.Context, embedder embeddings.Embedder, opts PGVectorOptions) (*PGVectorStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewPGVectorStoreWithPool(pool, embedder, opts), nil
}

// NewPGVectorStoreWithPool creates a store on an existing pool.
func NewPGVectorStoreWithPool(pool DBPool, embedder embeddings.Embedder, opts PGVectorOptions) *PGVectorStore {
	if opts.TableName == "" {
		opts.TableName = "documents"
	}
	if opts.Dimension <= 0 {
		opts.Dimension = 1536
	}
	return &PGVectorStore{
		pool:      pool,
		embedder:  embedder,
		tableName: opts.TableName,
		dimension: opts.Dimension,
	}
}

// InitSchema creates the extension and the documents table.
func (s *PGVectorStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d)
		)`, s.tableName, s.dimension)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *PGVectorStore) Close() {
	s.pool.Close()
}

func (s *PGVectorStore) options(opts []vectorstores.Option) (vectorstores.Options, embeddings.Embedder, error) {
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

// AddDocuments embeds docs and upserts them by id.
func (s *PGVectorStore) AddDocuments(ctx context.Context, docs []schema.Document, opts ...vectorstores.Option) ([]string, error) {
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

	query := fmt.Sprintf(`
		INSERT INTO %s (id, namespace, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			namespace = EXCLUDED.namespace,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`, s.tableName)

	ids := make([]string, 0, len(kept))
	for i, d := range kept {
		id, _ := d.Metadata["id"].(string)
		if id == "" {
			id = uuid.NewString()
		}
		md := make(map[string]any, len(d.Metadata)+1)
		maps.Copy(md, d.Metadata)
		md["id"] = id

		mdJSON, err := json.Marshal(md)
		if err != nil {
			return ids, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := s.pool.Exec(ctx, query, id, o.NameSpace, d.PageContent, mdJSON, pgvector.NewVector(vectors[i])); err != nil {
			return ids, fmt.Errorf("failed to insert document %s: %w", id, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SimilaritySearch returns the nearest documents by cosine distance. A map
// filter is matched with JSONB containment on the metadata column.
func (s *PGVectorStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, opts ...vectorstores.Option) ([]schema.Document, error) {
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

	sql := fmt.Sprintf(`
		SELECT content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE namespace = $2`, s.tableName)
	args := []any{pgvector.NewVector(q), o.NameSpace}
	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
		args = append(args, filterJSON)
		sql += fmt.Sprintf(" AND metadata @> $%d", len(args))
	}
	args = append(args, numDocuments)
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}
	defer rows.Close()

	var docs []schema.Document
	for rows.Next() {
		var (
			content string
			mdJSON  []byte
			score   float64
		)
		if err := rows.Scan(&content, &mdJSON, &score); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var md map[string]any
		if len(mdJSON) > 0 {
			if err := json.Unmarshal(mdJSON, &md); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if o.ScoreThreshold > 0 && float32(score) < o.ScoreThreshold {
			continue
		}
		docs = append(docs, schema.Document{PageContent: content, Metadata: md, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// Delete removes documents by id.
func (s *PGVectorStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", s.tableName)
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}
