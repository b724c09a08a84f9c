// Package app assembles the configured collaborators and workflows used by
// the command line and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallnest/ragflow/config"
	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/llm"
	"github.com/smallnest/ragflow/llm/openaiembed"
	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/metrics"
	"github.com/smallnest/ragflow/prebuilt"
	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/rag/loader"
	ragstore "github.com/smallnest/ragflow/rag/store"
	"github.com/smallnest/ragflow/store"
	"github.com/smallnest/ragflow/store/memory"
	"github.com/smallnest/ragflow/store/postgres"
	"github.com/smallnest/ragflow/store/redis"
	"github.com/smallnest/ragflow/store/sqlite"
	"github.com/smallnest/ragflow/tool"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/vectorstores"
)

// App holds the collaborators built from a config.Config.
type App struct {
	Config      config.Config
	Model       llms.Model
	Grader      llms.Model
	Embedder    embeddings.Embedder
	VectorStore vectorstores.VectorStore
	Retriever   *rag.VectorStoreRetriever
	Searcher    tool.WebSearcher
	Checkpoints store.CheckpointStore
	Metrics     *metrics.Collector

	workflows map[string]Workflow
	closers   []func()
}

// Option overrides a collaborator instead of building it from the config.
type Option func(*App)

func WithModel(m llms.Model) Option {
	return func(a *App) { a.Model = m }
}

// WithGrader sets the grading and routing model.
func WithGrader(m llms.Model) Option {
	return func(a *App) { a.Grader = m }
}

func WithEmbedder(e embeddings.Embedder) Option {
	return func(a *App) { a.Embedder = e }
}

func WithVectorStore(vs vectorstores.VectorStore) Option {
	return func(a *App) { a.VectorStore = vs }
}

func WithSearcher(s tool.WebSearcher) Option {
	return func(a *App) { a.Searcher = s }
}

func WithCheckpointStore(cs store.CheckpointStore) Option {
	return func(a *App) { a.Checkpoints = cs }
}

// WithRegisterer registers metrics on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		c, err := metrics.NewCollector(reg)
		if err != nil {
			log.Warn("metrics disabled: %v", err)
			return
		}
		a.Metrics = c
	}
}

// New builds an App. Collaborators not supplied through options are created
// from cfg; a failure closes everything opened so far.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	} else {
		log.Warn("%v, keeping the current log level", err)
	}

	a := &App{Config: cfg, workflows: map[string]Workflow{}}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	if a.Model == nil {
		m, err := llm.NewModel(llm.ModelConfig{APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model, BaseURL: cfg.LLM.BaseURL})
		if err != nil {
			return fmt.Errorf("failed to create chat model: %w", err)
		}
		a.Model = m
	}
	if a.Grader == nil {
		a.Grader = a.Model
		if cfg.LLM.GraderModel != "" && cfg.LLM.GraderModel != cfg.LLM.Model {
			m, err := llm.NewModel(llm.ModelConfig{APIKey: cfg.LLM.APIKey, Model: cfg.LLM.GraderModel, BaseURL: cfg.LLM.BaseURL})
			if err != nil {
				return fmt.Errorf("failed to create grader model: %w", err)
			}
			a.Grader = m
		}
	}

	if a.Embedder == nil {
		e, err := newEmbedder(cfg)
		if err != nil {
			return err
		}
		a.Embedder = e
	}
	if a.VectorStore == nil {
		if err := a.openVectorStore(ctx); err != nil {
			return err
		}
	}
	a.Retriever = rag.NewVectorStoreRetriever(a.VectorStore,
		rag.WithTopK(cfg.VectorStore.TopK),
		rag.WithNamespace(cfg.VectorStore.Namespace),
	)

	if a.Searcher == nil && cfg.Search.Provider != "" {
		s, err := newSearcher(cfg.Search)
		if err != nil {
			return err
		}
		a.Searcher = s
	}
	if a.Checkpoints == nil {
		if err := a.openCheckpoints(ctx); err != nil {
			return err
		}
	}
	if a.Metrics == nil {
		WithRegisterer(prometheus.DefaultRegisterer)(a)
	}
	return a.registerWorkflows()
}

func newEmbedder(cfg config.Config) (embeddings.Embedder, error) {
	switch cfg.LLM.Embedder {
	case "mock":
		return ragstore.NewMockEmbedder(cfg.VectorStore.Dimension), nil
	default:
		var opts []openaiembed.Option
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openaiembed.WithBaseURL(cfg.LLM.BaseURL))
		}
		if cfg.LLM.EmbeddingModel != "" {
			opts = append(opts, openaiembed.WithModel(cfg.LLM.EmbeddingModel))
		}
		e, err := openaiembed.NewEmbedder(cfg.LLM.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		return e, nil
	}
}

func (a *App) openVectorStore(ctx context.Context) error {
	vc := a.Config.VectorStore
	switch vc.Kind {
	case "pgvector":
		s, err := ragstore.NewPGVectorStore(ctx, a.Embedder, ragstore.PGVectorOptions{
			ConnString: vc.DSN,
			TableName:  vc.Table,
			Dimension:  vc.Dimension,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, s.Close)
		if err := s.InitSchema(ctx); err != nil {
			return err
		}
		a.VectorStore = s
	default:
		a.VectorStore = ragstore.NewInMemoryVectorStore(a.Embedder)
	}
	return nil
}

func newSearcher(sc config.SearchConfig) (tool.WebSearcher, error) {
	switch sc.Provider {
	case "tavily":
		return tool.NewTavilySearch(sc.APIKey, tool.WithTavilyMaxResults(sc.MaxResults))
	case "brave":
		return tool.NewBraveSearch(sc.APIKey, tool.WithBraveCount(sc.MaxResults))
	}
	return nil, fmt.Errorf("unknown search provider %q", sc.Provider)
}

func (a *App) openCheckpoints(ctx context.Context) error {
	cc := a.Config.Checkpoint
	switch cc.Kind {
	case "redis":
		s := redis.NewRedisCheckpointStore(redis.RedisOptions{
			Addr:     cc.DSN,
			Password: cc.Password,
			Prefix:   cc.Prefix,
			TTL:      cc.TTL,
		})
		a.closers = append(a.closers, func() { _ = s.Close() })
		a.Checkpoints = s
	case "postgres":
		s, err := postgres.NewPostgresCheckpointStore(ctx, postgres.PostgresOptions{ConnString: cc.DSN})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, s.Close)
		if err := s.InitSchema(ctx); err != nil {
			return err
		}
		a.Checkpoints = s
	case "sqlite":
		s, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{Path: cc.DSN})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		a.Checkpoints = s
	default:
		a.Checkpoints = memory.NewMemoryCheckpointStore()
	}
	return nil
}

func (a *App) registerWorkflows() error {
	maxRetries := a.Config.Workflow.MaxRetries
	topics := prebuilt.DefaultTopics
	if len(a.Config.Workflow.Topics) > 0 {
		topics = strings.Join(a.Config.Workflow.Topics, ", ")
	}

	selfRAG, err := prebuilt.NewSelfRAG(prebuilt.SelfRAGConfig{
		Model: a.Model, GraderModel: a.Grader, Retriever: a.Retriever, MaxRetries: maxRetries,
	})
	if err != nil {
		return err
	}
	register(a, ragWorkflow("self-rag", "Self-reflective RAG: grades documents and answers, rewriting and regenerating as needed", selfRAG))

	if a.Searcher != nil {
		crag, err := prebuilt.NewCorrectiveRAG(prebuilt.CRAGConfig{
			Model: a.Model, GraderModel: a.Grader, Retriever: a.Retriever, Searcher: a.Searcher,
		})
		if err != nil {
			return err
		}
		register(a, ragWorkflow("crag", "Corrective RAG: falls back to web search when retrieved documents are irrelevant", crag))

		adaptive, err := prebuilt.NewAdaptiveRAG(prebuilt.AdaptiveRAGConfig{
			Model: a.Model, GraderModel: a.Grader, Retriever: a.Retriever, Searcher: a.Searcher,
			Topics: topics, MaxRetries: maxRetries,
		})
		if err != nil {
			return err
		}
		register(a, ragWorkflow("adaptive-rag", "Adaptive RAG: routes each question to the vector store or web search", adaptive))
	} else {
		log.Warn("no search provider configured, crag and adaptive-rag are disabled")
	}

	translator, err := prebuilt.NewTranslator(a.Model)
	if err != nil {
		return err
	}
	register(a, &workflow[prebuilt.TranslateState]{
		name:        "translate",
		description: "Translate text into a target language",
		runnable:    translator,
		input: func(in Input) (prebuilt.TranslateState, error) {
			text := in.Text
			if text == "" {
				text = in.Question
			}
			if text == "" || in.Language == "" {
				return prebuilt.TranslateState{}, fmt.Errorf("%w: text and language are required", ErrInvalidInput)
			}
			return prebuilt.TranslateState{Language: in.Language, Text: text}, nil
		},
		answer: func(s prebuilt.TranslateState) (string, []rag.Document) { return s.Translation, nil },
	})

	planner, err := prebuilt.NewPlanExecute(prebuilt.PlanExecuteConfig{Planner: a.Model})
	if err != nil {
		return err
	}
	register(a, &workflow[prebuilt.PlanExecuteState]{
		name:        "plan-execute",
		description: "Plan the steps towards an objective, execute them and replan",
		runnable:    planner,
		input: func(in Input) (prebuilt.PlanExecuteState, error) {
			q, err := requireQuestion(in)
			return prebuilt.PlanExecuteState{Input: q}, err
		},
		answer: func(s prebuilt.PlanExecuteState) (string, []rag.Document) { return s.Response, nil },
	})

	reflection, err := prebuilt.NewReflectionAgent(prebuilt.ReflectionConfig{Model: a.Model, ReflectionModel: a.Grader})
	if err != nil {
		return err
	}
	register(a, &workflow[prebuilt.ReflectionState]{
		name:        "reflection",
		description: "Draft an answer and revise it until a reviewer accepts it",
		runnable:    reflection,
		input: func(in Input) (prebuilt.ReflectionState, error) {
			q, err := requireQuestion(in)
			return prebuilt.ReflectionState{Task: q}, err
		},
		answer: func(s prebuilt.ReflectionState) (string, []rag.Document) { return s.Draft, nil },
	})
	return nil
}

func ragWorkflow(name, description string, r *graph.StateRunnable[prebuilt.RAGState]) *workflow[prebuilt.RAGState] {
	return &workflow[prebuilt.RAGState]{
		name:        name,
		description: description,
		runnable:    r,
		input: func(in Input) (prebuilt.RAGState, error) {
			q, err := requireQuestion(in)
			return prebuilt.RAGState{Question: q}, err
		},
		answer: func(s prebuilt.RAGState) (string, []rag.Document) { return s.Generation, s.Documents },
	}
}

// register names the runnable, attaches the checkpointer and the logging and
// metrics listeners, and adds it to the registry.
func register[S any](a *App, w *workflow[S]) {
	listeners := []graph.Listener{graph.NewLoggingListener(nil, w.name)}
	if a.Metrics != nil {
		listeners = append(listeners, a.Metrics.Listener(w.name))
	}
	w.runnable = w.runnable.WithName(w.name).WithCheckpointer(a.Checkpoints).WithListeners(listeners...)
	a.workflows[w.name] = w
}

// Workflow returns a registered workflow.
func (a *App) Workflow(name string) (Workflow, error) {
	w, ok := a.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}
	return w, nil
}

// Workflows returns the registered workflow names in order.
func (a *App) Workflows() []string {
	names := make([]string, 0, len(a.workflows))
	for name := range a.workflows {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RunConfig builds the per-run graph config for a thread.
func (a *App) RunConfig(threadID string) *graph.Config {
	return &graph.Config{
		RecursionLimit: a.Config.Workflow.RecursionLimit,
		ThreadID:       threadID,
	}
}

// Ingest loads every source (an http(s) URL or a text file), splits it into
// chunks and adds the chunks to the vector store. It returns the chunk count.
func (a *App) Ingest(ctx context.Context, sources ...string) (int, error) {
	if len(sources) == 0 {
		return 0, errors.New("no sources to ingest")
	}
	var urls, files []string
	for _, s := range sources {
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			urls = append(urls, s)
		} else {
			files = append(files, s)
		}
	}

	var loaders []loader.Loader
	if len(urls) > 0 {
		loaders = append(loaders, loader.NewWebLoader(urls...))
	}
	for _, f := range files {
		loaders = append(loaders, loader.NewTextLoader(f, nil))
	}

	splitter := loader.NewSplitter(1000, 200)
	var chunks []rag.Document
	for _, l := range loaders {
		docs, err := loader.LoadAndSplit(ctx, l, splitter)
		if err != nil {
			return 0, err
		}
		chunks = append(chunks, docs...)
	}

	var opts []vectorstores.Option
	if ns := a.Config.VectorStore.Namespace; ns != "" {
		opts = append(opts, vectorstores.WithNameSpace(ns))
	}
	ids, err := rag.AddDocuments(ctx, a.VectorStore, chunks, opts...)
	if err != nil {
		return 0, fmt.Errorf("failed to add documents: %w", err)
	}
	log.Info("ingested %d chunks from %d sources", len(ids), len(sources))
	return len(ids), nil
}

// Close releases the connections opened by New.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
