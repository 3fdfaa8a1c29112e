package corpus

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// MarkupCleaner reduces a flashcard field to plain text. Anki exports carry
// markdown and inline HTML remnants; embedding them verbatim pollutes the
// vector with markup tokens.
type MarkupCleaner struct {
	parser goldmark.Markdown
}

// NewMarkupCleaner creates a cleaner with table support enabled.
func NewMarkupCleaner() *MarkupCleaner {
	return &MarkupCleaner{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// PlainText parses the field as markdown and collects the text content of
// the AST, separating block-level nodes with single spaces.
func (m *MarkupCleaner) PlainText(field string) string {
	if strings.TrimSpace(field) == "" {
		return ""
	}

	content := []byte(field)
	doc := m.parser.Parser().Parse(text.NewReader(content))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(content))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				b.Write(line.Value(content))
				b.WriteByte(' ')
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.ListItem, *ast.Heading:
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
		case *ast.RawHTML, *ast.HTMLBlock:
			// Drop HTML fragments entirely.
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(b.String()), " ")
}
