package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tmc/langchaingo/schema"
)

func TestDocument_WithMetadataCopies(t *testing.T) {
	d := Document{Content: "c", Metadata: map[string]any{"a": 1}}
	e := d.WithMetadata("b", 2)

	assert.Equal(t, map[string]any{"a": 1}, d.Metadata)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, e.Metadata)
}

func TestFilterDocuments(t *testing.T) {
	docs := []Document{{ID: "1", Score: 0.9}, {ID: "2", Score: 0.1}, {ID: "3", Score: 0.7}}
	kept := FilterDocuments(docs, func(d Document) bool { return d.Score > 0.5 })

	assert.Equal(t, []string{"1", "3"}, []string{kept[0].ID, kept[1].ID})
	assert.Len(t, docs, 3)
	assert.Empty(t, FilterDocuments(nil, func(Document) bool { return true }))
}

func TestSchemaConversion(t *testing.T) {
	d := Document{ID: "x", Content: "text", Source: "s.md", Section: "intro", Metadata: map[string]any{"k": "v"}, Score: 0.5}
	sd := ToSchema(d)

	assert.Equal(t, "text", sd.PageContent)
	assert.Equal(t, map[string]any{"k": "v", "id": "x", "source": "s.md", "section": "intro"}, sd.Metadata)
	assert.NotContains(t, d.Metadata, "id")

	back := FromSchema(sd)
	assert.Equal(t, "x", back.ID)
	assert.Equal(t, "s.md", back.Source)
	assert.Equal(t, "intro", back.Section)
	assert.Equal(t, float32(0.5), back.Score)

	n := FromSchema(schema.Document{PageContent: "p", Metadata: map[string]any{"id": 7}})
	assert.Equal(t, "7", n.ID)
	assert.Empty(t, n.Source)
}

func TestFormatDocuments(t *testing.T) {
	out := FormatDocuments([]Document{
		{Content: " first ", Source: "a.md"},
		{Content: "second"},
	})
	assert.Equal(t, "[1] (a.md)\nfirst\n\n[2]\nsecond", out)
	assert.Empty(t, FormatDocuments(nil))
}

func TestSources(t *testing.T) {
	docs := []Document{{Source: "a"}, {Source: ""}, {Source: "b"}, {Source: "a"}}
	assert.Equal(t, []string{"a", "b"}, Sources(docs))
}
