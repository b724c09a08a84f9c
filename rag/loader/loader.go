// Package loader turns files and web pages into rag documents.
package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/smallnest/ragflow/rag"
	"github.com/tmc/langchaingo/documentloaders"
)

// Loader loads documents from a source.
type Loader interface {
	Load(ctx context.Context) ([]rag.Document, error)
}

// TextLoader loads a plain text file as a single document.
type TextLoader struct {
	path     string
	metadata map[string]any
}

// NewTextLoader creates a loader for the file at path. metadata is copied onto
// the loaded document.
func NewTextLoader(path string, metadata map[string]any) *TextLoader {
	return &TextLoader{path: path, metadata: metadata}
}

func (l *TextLoader) Load(ctx context.Context) ([]rag.Document, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", l.path, err)
	}
	defer f.Close()

	schemaDocs, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", l.path, err)
	}

	docs := make([]rag.Document, 0, len(schemaDocs))
	for _, sd := range schemaDocs {
		if strings.TrimSpace(sd.PageContent) == "" {
			continue
		}
		d := rag.FromSchema(sd)
		d.Source = l.path
		for k, v := range l.metadata {
			d = d.WithMetadata(k, v)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// LoadAndSplit runs l and splits the result with s.
func LoadAndSplit(ctx context.Context, l Loader, s *Splitter) ([]rag.Document, error) {
	docs, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.Split(docs)
}
