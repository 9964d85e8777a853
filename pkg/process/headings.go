package process

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Heading is one entry of a page outline
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// ExtractHeadings parses markdown content and returns the heading outline in document order.
func ExtractHeadings(markdown []byte) []Heading {
	reader := text.NewReader(markdown)
	parser := goldmark.DefaultParser()
	doc := parser.Parse(reader)

	headings := []Heading{}
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			var buf bytes.Buffer
			collectInline(heading, markdown, &buf)
			if buf.Len() > 0 {
				headings = append(headings, Heading{Level: heading.Level, Text: buf.String()})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return headings
}

// collectInline gathers text segments below n, descending into emphasis and links
func collectInline(n ast.Node, source []byte, buf *bytes.Buffer) {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if textNode, ok := child.(*ast.Text); ok {
			buf.Write(textNode.Segment.Value(source))
			if textNode.SoftLineBreak() {
				buf.WriteByte(' ')
			}
			continue
		}
		collectInline(child, source, buf)
	}
}
