// Package rag holds the document model shared by retrievers, loaders, search
// tools and the prebuilt RAG workflows, plus adapters to langchaingo.
package rag

import (
	"fmt"
	"maps"
	"strings"

	"github.com/tmc/langchaingo/schema"
)

// Metadata keys mirrored between Document fields and langchaingo metadata.
const (
	MetadataID      = "id"
	MetadataSource  = "source"
	MetadataSection = "section"
)

// Document is a retrieved or loaded piece of text. It is treated as a value:
// helpers in this package return new documents instead of changing their input.
type Document struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content"`
	Source   string         `json:"source,omitempty"`
	Section  string         `json:"section,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	// Score is the similarity reported by the store, when it reports one.
	Score float32 `json:"score,omitempty"`
}

// WithMetadata returns a copy of d with key set to value.
func (d Document) WithMetadata(key string, value any) Document {
	md := make(map[string]any, len(d.Metadata)+1)
	maps.Copy(md, d.Metadata)
	md[key] = value
	d.Metadata = md
	return d
}

// FilterDocuments returns the documents for which keep reports true, in order.
func FilterDocuments(docs []Document, keep func(Document) bool) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// FromSchema converts a langchaingo document.
func FromSchema(doc schema.Document) Document {
	d := Document{
		Content: doc.PageContent,
		Score:   doc.Score,
	}
	if len(doc.Metadata) > 0 {
		d.Metadata = make(map[string]any, len(doc.Metadata))
		maps.Copy(d.Metadata, doc.Metadata)
	}
	d.ID = metadataString(doc.Metadata, MetadataID)
	d.Source = metadataString(doc.Metadata, MetadataSource)
	d.Section = metadataString(doc.Metadata, MetadataSection)
	return d
}

// FromSchemaDocuments converts a slice of langchaingo documents.
func FromSchemaDocuments(docs []schema.Document) []Document {
	out := make([]Document, len(docs))
	for i, doc := range docs {
		out[i] = FromSchema(doc)
	}
	return out
}

// ToSchema converts d to a langchaingo document. ID, Source and Section are
// stored in the metadata so they survive a round trip through a vector store.
func ToSchema(d Document) schema.Document {
	md := make(map[string]any, len(d.Metadata)+3)
	maps.Copy(md, d.Metadata)
	if d.ID != "" {
		md[MetadataID] = d.ID
	}
	if d.Source != "" {
		md[MetadataSource] = d.Source
	}
	if d.Section != "" {
		md[MetadataSection] = d.Section
	}
	return schema.Document{PageContent: d.Content, Metadata: md, Score: d.Score}
}

// ToSchemaDocuments converts a slice of documents.
func ToSchemaDocuments(docs []Document) []schema.Document {
	out := make([]schema.Document, len(docs))
	for i, d := range docs {
		out[i] = ToSchema(d)
	}
	return out
}

// FormatDocuments renders documents as prompt context, one block per document.
func FormatDocuments(docs []Document) string {
	var sb strings.Builder
	for i, d := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if d.Source != "" {
			fmt.Fprintf(&sb, "[%d] (%s)\n", i+1, d.Source)
		} else {
			fmt.Fprintf(&sb, "[%d]\n", i+1)
		}
		sb.WriteString(strings.TrimSpace(d.Content))
	}
	return sb.String()
}

// Sources returns the distinct non-empty sources of docs in first-seen order.
func Sources(docs []Document) []string {
	seen := make(map[string]bool, len(docs))
	var out []string
	for _, d := range docs {
		if d.Source == "" || seen[d.Source] {
			continue
		}
		seen[d.Source] = true
		out = append(out, d.Source)
	}
	return out
}

func metadataString(md map[string]any, key string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
