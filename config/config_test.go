package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

var envKeys = []string{
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "RAGFLOW_GRADER_MODEL",
	"RAGFLOW_EMBEDDING_MODEL", "RAGFLOW_EMBEDDER", "RAGFLOW_VECTOR_STORE", "RAGFLOW_VECTOR_DSN",
	"RAGFLOW_NAMESPACE", "RAGFLOW_CHECKPOINT_STORE", "RAGFLOW_CHECKPOINT_DSN",
	"RAGFLOW_CHECKPOINT_PASSWORD", "RAGFLOW_SEARCH_PROVIDER", "RAGFLOW_LOG_LEVEL", "RAGFLOW_ADDR",
	"RAGFLOW_RECURSION_LIMIT", "RAGFLOW_MAX_RETRIES", "RAGFLOW_TOP_K",
}

// clearEnv unsets the variables Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFilesIgnored(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "none.yaml"), filepath.Join(dir, ".env"))
	require.NoError(t, err)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "ragflow.yaml", `
llm:
  model: gpt-4o
  embedder: mock
vector_store:
  kind: pgvector
  dsn: postgres://localhost/rag
  dimension: 768
checkpoint:
  kind: redis
  dsn: localhost:6379
  ttl: 1h
search:
  provider: brave
workflow:
  recursion_limit: 40
  topics: [agents, prompt engineering]
`)
	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "text-embedding-3-small", cfg.LLM.EmbeddingModel)
	assert.Equal(t, "pgvector", cfg.VectorStore.Kind)
	assert.Equal(t, 768, cfg.VectorStore.Dimension)
	assert.Equal(t, time.Hour, cfg.Checkpoint.TTL)
	assert.Equal(t, 40, cfg.Workflow.RecursionLimit)
	assert.Equal(t, 3, cfg.Workflow.MaxRetries)
	assert.Equal(t, []string{"agents", "prompt engineering"}, cfg.Workflow.Topics)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "ragflow.yaml", "llm:\n  model: from-file\n")
	t.Setenv("OPENAI_MODEL", "from-env")
	t.Setenv("RAGFLOW_RECURSION_LIMIT", "7")
	t.Setenv("RAGFLOW_SEARCH_PROVIDER", "tavily")
	t.Setenv("TAVILY_API_KEY", "tvly-key")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.Workflow.RecursionLimit)
	assert.Equal(t, "tvly-key", cfg.Search.APIKey)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	envFile := writeFile(t, ".env", "RAGFLOW_LOG_LEVEL=debug\n")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGFLOW_MAX_RETRIES", "many")
	_, err := Load("", "")
	assert.ErrorContains(t, err, "RAGFLOW_MAX_RETRIES")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "llm: [")
	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.VectorStore.Kind = "pgvector"
	cfg.Checkpoint.Kind = "etcd"
	cfg.Search.Provider = "bing"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "vector_store.dsn is required")
	assert.ErrorContains(t, err, `unknown checkpoint store "etcd"`)
	assert.ErrorContains(t, err, `unknown search provider "bing"`)
}
