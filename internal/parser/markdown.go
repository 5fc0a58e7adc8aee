package parser

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gtext "github.com/yuin/goldmark/text"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// markdownToText drops markup and keeps the readable text, one line per
// block.
func markdownToText(src []byte) (string, error) {
	doc := md.Parser().Parse(gtext.NewReader(src))

	var b textWriter
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.newline()
				}
			}
			return ast.WalkContinue, nil
		case *ast.String:
			if entering {
				b.write(node.Value)
			}
			return ast.WalkContinue, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.write(seg.Value(src))
				}
				b.newline()
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}

		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			b.newline()
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

type textWriter struct {
	strings.Builder
	last byte
}

func (w *textWriter) write(p []byte) {
	if len(p) == 0 {
		return
	}
	w.Write(p)
	w.last = p[len(p)-1]
}

func (w *textWriter) newline() {
	if w.Len() > 0 && w.last != '\n' {
		w.WriteByte('\n')
		w.last = '\n'
	}
}
