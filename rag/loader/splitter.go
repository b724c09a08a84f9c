package loader

import (
	"fmt"

	"github.com/smallnest/ragflow/rag"
	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter cuts documents into overlapping chunks with langchaingo's recursive
// character splitter.
type Splitter struct {
	splitter textsplitter.TextSplitter
}

// NewSplitter creates a splitter. Non-positive values fall back to 1000 and 200.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = min(200, chunkSize/5)
	}
	return &Splitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Split returns the chunks of docs. Each chunk keeps the source document's
// fields and metadata; its ID is "<parent id>#<n>" and "chunk" holds n.
func (s *Splitter) Split(docs []rag.Document) ([]rag.Document, error) {
	var out []rag.Document
	for _, d := range docs {
		chunks, err := s.splitter.SplitText(d.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s: %w", d.Source, err)
		}
		parent := d.ID
		if parent == "" {
			parent = d.Source
		}
		for i, chunk := range chunks {
			c := d.WithMetadata("chunk", i)
			c.Content = chunk
			if parent != "" {
				c.ID = fmt.Sprintf("%s#%d", parent, i)
			}
			out = append(out, c)
		}
	}
	return out, nil
}
