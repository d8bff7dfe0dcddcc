// Package notes converts between the stored plain-text and HTML forms of technique
// notes.
package notes

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
)

// PlainText returns the visible text of an HTML fragment. Block elements start a new
// line; runs of whitespace collapse to one space; empty lines are dropped.
func PlainText(fragment string) (string, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	var content strings.Builder
	var f func(*html.Node)
	f = func(node *html.Node) {
		if node.Type == html.TextNode {
			if words := strings.Fields(node.Data); len(words) > 0 {
				content.WriteString(strings.Join(words, " "))
				content.WriteString(" ")
			}
			return
		}

		block := false
		if node.Type == html.ElementNode {
			switch node.Data {
			case "script", "style", "head":
				return
			case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6", "li", "tr", "blockquote", "pre":
				block = true
				content.WriteString("\n")
			}
		}

		for c := node.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
		if block {
			content.WriteString("\n")
		}
	}
	f(doc)

	var lines []string
	for _, line := range strings.Split(content.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))

// RenderMarkdown renders markdown source to an HTML fragment.
func RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}
