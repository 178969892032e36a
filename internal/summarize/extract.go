package summarize

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ExtractText pulls readable text from a stored artifact. HTML is
// stripped to its visible content; plain text passes through. Binary
// formats are rejected with ErrUnsupportedFormat.
func ExtractText(name string, raw []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".htm", ".html":
		return htmlText(raw)
	case ".txt":
		return string(raw), nil
	default:
		return "", fmt.Errorf("%s: %w", filepath.Ext(name), ErrUnsupportedFormat)
	}
}

func htmlText(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	// Collect text nodes individually so adjacent elements do not glue
	// their words together, then collapse the whitespace.
	var parts []string
	for _, node := range root.Nodes {
		collectText(node, &parts)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), nil
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		*parts = append(*parts, n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
