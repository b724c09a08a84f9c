package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><head><title>Agent Memory</title><style>p{color:red}</style></head>
<body>
  <script>var x = 1;</script>
  <h1>Memory</h1>
  <p>Short-term memory is   in-context learning.</p>

  <p>Long-term memory uses an external vector store.</p>
</body></html>`

func TestWebLoader_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ragflow/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	docs, err := NewWebLoader(srv.URL).WithHTTPClient(srv.Client()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	d := docs[0]
	assert.Equal(t, srv.URL, d.Source)
	assert.Equal(t, srv.URL, d.ID)
	assert.Equal(t, "Agent Memory", d.Metadata["title"])
	assert.Contains(t, d.Content, "Short-term memory is in-context learning.")
	assert.Contains(t, d.Content, "Long-term memory")
	assert.NotContains(t, d.Content, "var x")
	assert.NotContains(t, d.Content, "color:red")
}

func TestWebLoader_Selector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	l := NewWebLoader(srv.URL)
	l.Selector = "h1"
	docs, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Memory", docs[0].Content)
}

func TestWebLoader_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewWebLoader(srv.URL).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestTextLoader_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Prompt engineering steers models."), 0o644))

	docs, err := NewTextLoader(path, map[string]any{"topic": "prompts"}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, path, docs[0].Source)
	assert.Equal(t, "prompts", docs[0].Metadata["topic"])
	assert.Equal(t, "Prompt engineering steers models.", docs[0].Content)
}

func TestTextLoader_MissingFile(t *testing.T) {
	_, err := NewTextLoader(filepath.Join(t.TempDir(), "missing.txt"), nil).Load(context.Background())
	assert.Error(t, err)
}

func TestLoadAndSplit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.txt")
	paragraph := strings.Repeat("word ", 40)
	content := strings.Join([]string{paragraph, paragraph, paragraph}, "\n\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	chunks, err := LoadAndSplit(context.Background(), NewTextLoader(path, nil), NewSplitter(250, 0))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 250)
		assert.Equal(t, path, c.Source)
		assert.Equal(t, i, c.Metadata["chunk"])
	}
	assert.Equal(t, path+"#0", chunks[0].ID)
}

func TestNewSplitter_Defaults(t *testing.T) {
	s := NewSplitter(0, -1)
	require.NotNil(t, s.splitter)

	chunks, err := s.Split(nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
