// Package markdown renders run summaries written in Markdown.
package markdown

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// newRenderer builds a goldmark instance with GFM tables. Raw HTML in the
// source is omitted, since summaries embed command output.
func newRenderer() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
}

// ToHTML renders a Markdown body to an HTML fragment.
func ToHTML(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := newRenderer().Convert(body, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Page renders body and wraps it in a minimal standalone HTML document.
func Page(title string, body []byte) ([]byte, error) {
	fragment, err := ToHTML(body)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(title))
	buf.WriteString("</title></head>\n<body>\n")
	buf.Write(fragment)
	buf.WriteString("</body></html>\n")
	return buf.Bytes(), nil
}

// Headings returns the text of every heading in body, in document order.
func Headings(body []byte) []string {
	root := newRenderer().Parser().Parse(text.NewReader(body))
	var out []string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if h, ok := n.(*gmast.Heading); ok {
			out = append(out, headingText(h, body))
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})
	return out
}

func headingText(h *gmast.Heading, src []byte) string {
	var buf bytes.Buffer
	lines := h.Lines()
	for i := range lines.Len() {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.String()
}
