package prebuilt

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/llm"
	"github.com/tmc/langchaingo/llms"
)

// TranslateState is the input and output of the translator.
type TranslateState struct {
	Language    string `json:"language"`
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
}

// NewTranslator builds a single-node chain translating Text into Language.
func NewTranslator(model llms.Model) (*graph.StateRunnable[TranslateState], error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model", errMissingCollaborator)
	}

	g := graph.NewStateGraph[TranslateState]()
	g.AddNode("translate", "Translate the text", func(ctx context.Context, s TranslateState) (TranslateState, error) {
		if s.Language == "" {
			return TranslateState{}, fmt.Errorf("target language is required")
		}
		out, err := llm.Generate(ctx, model, "You are an assistant that translates text. Translate the user text into "+s.Language+".", s.Text)
		if err != nil {
			return TranslateState{}, err
		}
		return TranslateState{Translation: strings.TrimSpace(out)}, nil
	})
	g.SetEntryPoint("translate")
	g.AddEdge("translate", graph.END)

	r, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return r.WithName("translate"), nil
}
