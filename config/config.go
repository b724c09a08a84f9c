// Package config loads the application configuration from a YAML file, an
// optional .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	Search      SearchConfig      `yaml:"search"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
}

type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	// GraderModel is used for grading and routing; empty means Model.
	GraderModel    string `yaml:"grader_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	// Embedder is "openai" or "mock".
	Embedder string `yaml:"embedder"`
}

type VectorStoreConfig struct {
	// Kind is "memory" or "pgvector".
	Kind      string `yaml:"kind"`
	DSN       string `yaml:"dsn"`
	Table     string `yaml:"table"`
	Dimension int    `yaml:"dimension"`
	Namespace string `yaml:"namespace"`
	TopK      int    `yaml:"top_k"`
}

type CheckpointConfig struct {
	// Kind is "memory", "redis", "postgres" or "sqlite".
	Kind string `yaml:"kind"`
	// DSN is the Redis address, the Postgres connection string or the SQLite path.
	DSN      string        `yaml:"dsn"`
	Password string        `yaml:"password"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type SearchConfig struct {
	// Provider is "tavily", "brave" or empty for no web search.
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	MaxResults int    `yaml:"max_results"`
}

type WorkflowConfig struct {
	RecursionLimit int      `yaml:"recursion_limit"`
	MaxRetries     int      `yaml:"max_retries"`
	Topics         []string `yaml:"topics"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Embedder:       "openai",
		},
		VectorStore: VectorStoreConfig{Kind: "memory", Table: "documents", Dimension: 1536, TopK: 4},
		Checkpoint:  CheckpointConfig{Kind: "memory"},
		Search:      SearchConfig{MaxResults: 3},
		Workflow:    WorkflowConfig{RecursionLimit: 25, MaxRetries: 3},
		Log:         LogConfig{Level: "info"},
		Server:      ServerConfig{Addr: ":8080"},
	}
}

// Load reads path (skipped when empty or missing), then envFile (same), then
// applies environment overrides and validates the result.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.LLM.APIKey, "OPENAI_API_KEY")
	setString(&c.LLM.Model, "OPENAI_MODEL")
	setString(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	setString(&c.LLM.GraderModel, "RAGFLOW_GRADER_MODEL")
	setString(&c.LLM.EmbeddingModel, "RAGFLOW_EMBEDDING_MODEL")
	setString(&c.LLM.Embedder, "RAGFLOW_EMBEDDER")
	setString(&c.VectorStore.Kind, "RAGFLOW_VECTOR_STORE")
	setString(&c.VectorStore.DSN, "RAGFLOW_VECTOR_DSN")
	setString(&c.VectorStore.Namespace, "RAGFLOW_NAMESPACE")
	setString(&c.Checkpoint.Kind, "RAGFLOW_CHECKPOINT_STORE")
	setString(&c.Checkpoint.DSN, "RAGFLOW_CHECKPOINT_DSN")
	setString(&c.Checkpoint.Password, "RAGFLOW_CHECKPOINT_PASSWORD")
	setString(&c.Search.Provider, "RAGFLOW_SEARCH_PROVIDER")
	setString(&c.Log.Level, "RAGFLOW_LOG_LEVEL")
	setString(&c.Server.Addr, "RAGFLOW_ADDR")

	if c.Search.APIKey == "" {
		switch c.Search.Provider {
		case "tavily":
			c.Search.APIKey = os.Getenv("TAVILY_API_KEY")
		case "brave":
			c.Search.APIKey = os.Getenv("BRAVE_API_KEY")
		}
	}

	if err := setInt(&c.Workflow.RecursionLimit, "RAGFLOW_RECURSION_LIMIT"); err != nil {
		return err
	}
	if err := setInt(&c.Workflow.MaxRetries, "RAGFLOW_MAX_RETRIES"); err != nil {
		return err
	}
	return setInt(&c.VectorStore.TopK, "RAGFLOW_TOP_K")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

// Validate checks the enumerated fields and the settings they require.
func (c Config) Validate() error {
	var errs []error
	switch c.LLM.Embedder {
	case "openai", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown embedder %q", c.LLM.Embedder))
	}
	switch c.VectorStore.Kind {
	case "memory":
	case "pgvector":
		if c.VectorStore.DSN == "" {
			errs = append(errs, errors.New("vector_store.dsn is required for pgvector"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector store %q", c.VectorStore.Kind))
	}
	switch c.Checkpoint.Kind {
	case "memory":
	case "redis", "postgres", "sqlite":
		if c.Checkpoint.DSN == "" {
			errs = append(errs, fmt.Errorf("checkpoint.dsn is required for %s", c.Checkpoint.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown checkpoint store %q", c.Checkpoint.Kind))
	}
	switch c.Search.Provider {
	case "", "tavily", "brave":
	default:
		errs = append(errs, fmt.Errorf("unknown search provider %q", c.Search.Provider))
	}
	if c.Workflow.RecursionLimit < 0 {
		errs = append(errs, errors.New("workflow.recursion_limit must not be negative"))
	}
	return errors.Join(errs...)
}
