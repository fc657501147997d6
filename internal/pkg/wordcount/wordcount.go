// Package wordcount counts words in plain text or markdown. Markdown syntax
// is parsed away with goldmark first so that "**bold**" and "bold" count the
// same, which keeps counts comparable across summarization providers.
package wordcount

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

var parser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

// PlainText returns the readable text of a markdown document with block
// boundaries collapsed to newlines.
func PlainText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	source := []byte(src)
	doc := parser.Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if n.Type() == ast.TypeBlock && entering && b.Len() > 0 {
			b.WriteByte('\n')
		}
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(source))
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			var raw bytes.Buffer
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				raw.Write(seg.Value(source))
			}
			if node.HasClosure() {
				raw.Write(node.ClosureLine.Value(source))
			}
			b.WriteString(htmlText(raw.Bytes()))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			// Inline tags only; the text around them is a sibling Text node.
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// htmlText returns the character data of an HTML fragment. Script and style
// bodies are not text.
func htmlText(raw []byte) string {
	z := html.NewTokenizer(bytes.NewReader(raw))
	var b strings.Builder
	hidden := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if hidden == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) {
				hidden++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) && hidden > 0 {
				hidden--
			}
		}
	}
}

func isHiddenTag(name []byte) bool {
	return bytes.Equal(name, []byte("script")) || bytes.Equal(name, []byte("style"))
}

// Count returns the number of words in src after stripping markdown syntax.
// Tokens without any letter or digit (stray punctuation, list bullets) are
// not words.
func Count(src string) int {
	n := 0
	for _, tok := range strings.Fields(PlainText(src)) {
		if hasWordRune(tok) {
			n++
		}
	}
	return n
}

func hasWordRune(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
