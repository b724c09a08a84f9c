// Package report renders workflow answers as sanitized HTML pages.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
	"github.com/smallnest/ragflow/rag"
)

// Report is a rendered answer.
type Report struct {
	Title    string
	Question string
	// Answer is Markdown.
	Answer  string
	Sources []rag.Document
}

// RenderMarkdown converts Markdown to HTML and strips anything unsafe.
func RenderMarkdown(md string) []byte {
	md = strings.TrimSpace(md)
	md = strings.TrimPrefix(md, "```markdown")
	md = strings.TrimSuffix(md, "```")

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return bluemonday.UGCPolicy().SanitizeBytes(markdown.Render(doc, renderer))
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Question}}<p class="question">{{.Question}}</p>{{end}}
<article>
{{.Answer}}
</article>
{{if .Sources}}<h2>Sources</h2>
<ol class="sources">
{{range .Sources}}<li>{{if .URL}}<a href="{{.URL}}" target="_blank">{{.Label}}</a>{{else}}{{.Label}}{{end}}</li>
{{end}}</ol>{{end}}
</body>
</html>
`))

type source struct {
	Label string
	URL   string
}

// Write renders r as a complete HTML page.
func (r Report) Write(w io.Writer) error {
	title := r.Title
	if title == "" {
		title = "Answer"
	}

	var sources []source
	seen := map[string]bool{}
	for _, d := range r.Sources {
		label := d.Source
		if label == "" {
			label = d.ID
		}
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		s := source{Label: label}
		if t, ok := d.Metadata["title"].(string); ok && t != "" {
			s.Label = t
		}
		if strings.HasPrefix(label, "http://") || strings.HasPrefix(label, "https://") {
			s.URL = label
		}
		sources = append(sources, s)
	}

	err := page.Execute(w, struct {
		Title    string
		Question string
		Answer   template.HTML
		Sources  []source
	}{
		Title:    title,
		Question: r.Question,
		Answer:   template.HTML(RenderMarkdown(r.Answer)), // #nosec G203 sanitized above
		Sources:  sources,
	})
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// HTML renders r and returns the page.
func (r Report) HTML() (string, error) {
	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
