// ragflow - Graph Workflows for Retrieval Augmented Generation in Go
//
// ragflow builds LLM applications as state graphs: nodes are functions that
// return partial updates of a typed state, edges and routers decide what runs
// next, and a run stops at END or at the recursion limit. On top of the engine
// it ships corrective, self-reflective and adaptive RAG workflows together with
// reflection, supervisor, plan-and-execute and ReAct agents.
//
// # Quick Start
//
//	go get github.com/smallnest/ragflow
//
// A two node graph:
//
//	type State struct {
//		Question string
//		Answer   string
//	}
//
//	g := graph.NewStateGraph[State]()
//	g.AddNode("think", "Think about the question", think)
//	g.AddNode("answer", "Write the answer", answer)
//	g.AddEdge("think", "answer")
//	g.AddEdge("answer", graph.END)
//	g.SetEntryPoint("think")
//
//	runnable, err := g.Compile()
//	if err != nil {
//		return err
//	}
//	final, err := runnable.Invoke(ctx, State{Question: "What is RAG?"})
//
// Corrective RAG over an in-memory vector store and Tavily web search:
//
//	model, _ := llm.NewModel(llm.ModelConfig{})
//	vs := store.NewInMemoryVectorStore(embedder)
//	search, _ := tool.NewTavilySearch("")
//
//	crag, err := prebuilt.NewCorrectiveRAG(prebuilt.CRAGConfig{
//		Model:     model,
//		Retriever: rag.NewVectorStoreRetriever(vs),
//		Searcher:  search,
//	})
//	out, err := crag.Invoke(ctx, prebuilt.RAGState{Question: "What is task decomposition?"})
//
// # State Management
//
// Updates are merged into the state through a Schema. StructSchema merges
// struct states field by field following the `reducer` tag of each field:
// "replace" (default), "append" for slices and "merge" for maps. Zero valued
// fields of an update are left alone, so optional flags are pointers.
//
// # Package Structure
//
//   - graph: state graphs, routing, streaming, listeners, checkpointing, subgraphs and diagrams
//   - store: checkpoint stores (memory, redis, postgres, sqlite)
//   - rag: documents and retrievers; rag/store holds vector stores, rag/loader loaders and splitters
//   - llm: chat model helpers, structured output and graders; llm/openaiembed embeddings
//   - tool: Tavily and Brave web search
//   - prebuilt: ready made workflows and agents
//   - log: golog backed logging
//   - metrics: Prometheus listener
//   - config, app, server, report and cmd/ragflow: the application around the workflows
package ragflow // import "github.com/smallnest/ragflow"
