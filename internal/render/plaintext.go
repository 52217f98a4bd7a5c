package render

import (
	"strings"
	"unicode/utf8"

	"github.com/codu-code/codu/internal/util"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

const ExcerptLength = 156

// PlainText strips markdown, tags and code blocks from body and collapses
// whitespace.
func PlainText(body []byte) string {
	body = util.StripFrontMatter(markdown.NormalizeNewlines(body))
	body = reTag.ReplaceAll(body, nil)

	p := parser.NewWithExtensions(classicExtensions)
	doc := p.Parse(body)

	var b strings.Builder
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.CodeBlock, *ast.HTMLBlock, *ast.HTMLSpan:
			return ast.SkipChildren
		case *ast.Text:
			if entering {
				b.Write(n.Literal)
			}
		case *ast.Code:
			if entering {
				b.Write(n.Literal)
			}
		case *ast.Softbreak, *ast.Hardbreak:
			b.WriteByte(' ')
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.TableCell, *ast.BlockQuote:
			if !entering {
				b.WriteByte(' ')
			}
		}
		return ast.GoToNext
	})

	return strings.Join(strings.Fields(b.String()), " ")
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:max]), " ")
}

// Excerpt derives a summary from body when the author left none.
func Excerpt(body []byte) string {
	return Truncate(PlainText(body), ExcerptLength)
}

func WordCount(body []byte) int {
	return len(strings.Fields(PlainText(body)))
}
