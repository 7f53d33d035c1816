package channels

import (
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// formatTelegram renders markdown into the HTML subset Telegram accepts.
// Images and raw HTML are dropped.
func formatTelegram(src string) (string, error) {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Paragraph:
			if !entering && node.NextSibling() != nil {
				b.WriteString("\n\n")
			}
		case *ast.Heading:
			if entering {
				b.WriteString("<b>")
			} else {
				b.WriteString("</b>")
				if node.NextSibling() != nil {
					b.WriteString("\n\n")
				}
			}
		case *ast.TextBlock:
			if !entering && node.NextSibling() != nil {
				b.WriteByte('\n')
			}
		case *ast.List:
			if !entering && node.NextSibling() != nil {
				b.WriteString("\n\n")
			}
		case *ast.ListItem:
			if entering {
				b.WriteString("• ")
			} else if node.NextSibling() != nil {
				b.WriteByte('\n')
			}
		case *ast.Text:
			if entering {
				b.WriteString(html.EscapeString(string(node.Segment.Value(source))))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.WriteString(html.EscapeString(string(node.Value)))
			}
		case *ast.Emphasis:
			tag := "i"
			if node.Level >= 2 {
				tag = "b"
			}
			if entering {
				b.WriteString("<" + tag + ">")
			} else {
				b.WriteString("</" + tag + ">")
			}
		case *ast.CodeSpan:
			if entering {
				b.WriteString("<code>")
			} else {
				b.WriteString("</code>")
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				b.WriteString("<pre>")
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.WriteString(html.EscapeString(string(seg.Value(source))))
				}
				b.WriteString("</pre>")
				if node.NextSibling() != nil {
					b.WriteString("\n\n")
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			if entering {
				b.WriteString(`<a href="` + html.EscapeString(string(node.Destination)) + `">`)
			} else {
				b.WriteString("</a>")
			}
		case *ast.AutoLink:
			if entering {
				url := html.EscapeString(string(node.URL(source)))
				b.WriteString(`<a href="` + url + `">` + html.EscapeString(string(node.Label(source))) + "</a>")
			}
			return ast.WalkSkipChildren, nil
		case *ast.Image, *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
