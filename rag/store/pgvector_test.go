package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

func newMockPGVector(t *testing.T) (*PGVectorStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPGVectorStoreWithPool(mock, NewMockEmbedder(8), PGVectorOptions{Dimension: 8}), mock
}

func TestPGVectorStore_InitSchema(t *testing.T) {
	s, mock := newMockPGVector(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("embedding vector(8)")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_AddDocuments(t *testing.T) {
	s, mock := newMockPGVector(t)

	md, _ := json.Marshal(map[string]any{"id": "doc-1", "source": "a.md"})
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("doc-1", "", "agent memory", md, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ids, err := s.AddDocuments(context.Background(), []schema.Document{
		{PageContent: "agent memory", Metadata: map[string]any{"id": "doc-1", "source": "a.md"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_SimilaritySearch(t *testing.T) {
	s, mock := newMockPGVector(t)

	rows := pgxmock.NewRows([]string{"content", "metadata", "score"}).
		AddRow("agent memory", []byte(`{"id":"doc-1"}`), 0.92).
		AddRow("prompting", []byte(`{"id":"doc-2"}`), 0.12)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY embedding <=> $1 LIMIT $3")).
		WithArgs(pgxmock.AnyArg(), "", 2).
		WillReturnRows(rows)

	docs, err := s.SimilaritySearch(context.Background(), "agent memory", 2, vectorstores.WithScoreThreshold(0.5))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "agent memory", docs[0].PageContent)
	assert.Equal(t, "doc-1", docs[0].Metadata["id"])
	assert.InDelta(t, 0.92, docs[0].Score, 1e-6)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_SimilaritySearch_Filter(t *testing.T) {
	s, mock := newMockPGVector(t)

	filter, _ := json.Marshal(map[string]any{"source": "a.md"})
	mock.ExpectQuery(regexp.QuoteMeta("metadata @> $3")).
		WithArgs(pgxmock.AnyArg(), "docs", filter, 4).
		WillReturnRows(pgxmock.NewRows([]string{"content", "metadata", "score"}))

	docs, err := s.SimilaritySearch(context.Background(), "q", 4,
		vectorstores.WithNameSpace("docs"),
		vectorstores.WithFilters(map[string]any{"source": "a.md"}))
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_Delete(t *testing.T) {
	s, mock := newMockPGVector(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = ANY($1)")).
		WithArgs([]string{"a", "b"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, s.Delete(context.Background(), "a", "b"))
	require.NoError(t, s.Delete(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
