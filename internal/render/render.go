// Package render turns report markdown into HTML for the page and JSON API.
package render

import (
	"html/template"

	"gitlab.com/golang-commonmark/markdown"
)

// Renderer converts markdown with tables and autolinks enabled. Raw HTML in the
// input is escaped, since reports come from a remote model.
type Renderer struct {
	md *markdown.Markdown
}

func New() *Renderer {
	return &Renderer{
		md: markdown.New(
			markdown.HTML(false),
			markdown.Tables(true),
			markdown.Linkify(true),
			markdown.Typographer(false),
			markdown.XHTMLOutput(true),
		),
	}
}

// HTML renders src. The result is safe to place in a template unescaped.
func (r *Renderer) HTML(src string) template.HTML {
	return template.HTML(r.md.RenderToString([]byte(src)))
}
