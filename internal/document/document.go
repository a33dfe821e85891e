// internal/document/document.go
package document

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed HTML document that can be queried by CSS selector.
type Document interface {
	Query(selector string) []Node
	// First returns the first node matching selector, or nil.
	First(selector string) Node
	// MetaContent returns the content of a <meta> tag whose name, property or
	// itemprop equals name.
	MetaContent(name string) (string, bool)
}

// Node is a single element of a parsed document.
type Node interface {
	Attribute(name string) (string, bool)
	TextContent() string
	// InlineStyle returns the parsed declarations of the element's style
	// attribute, keyed by lower-cased property name.
	InlineStyle() map[string]string
}

// Parser turns raw HTML into a queryable Document.
type Parser interface {
	Parse(html string) (Document, error)
}

// GoqueryParser is the default Parser, backed by goquery and x/net/html.
type GoqueryParser struct{}

// NewParser returns the default Parser.
func NewParser() *GoqueryParser { return &GoqueryParser{} }

// Parse implements Parser. The HTML5 parsing algorithm is lenient, so errors
// are limited to failures reading the input.
func (GoqueryParser) Parse(html string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html document: %w", err)
	}
	return &htmlDocument{doc: doc}, nil
}

type htmlDocument struct {
	doc *goquery.Document
}

func (d *htmlDocument) Query(selector string) []Node {
	sel := d.doc.Find(selector)
	nodes := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, &htmlNode{sel: s})
	})
	return nodes
}

func (d *htmlDocument) First(selector string) Node {
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return &htmlNode{sel: sel}
}

func (d *htmlDocument) MetaContent(name string) (string, bool) {
	var content string
	found := false
	d.doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"name", "property", "itemprop"} {
			if v, ok := s.Attr(attr); ok && strings.EqualFold(v, name) {
				content, found = s.Attr("content")
				if found {
					return false
				}
			}
		}
		return true
	})
	return content, found
}

type htmlNode struct {
	sel *goquery.Selection
}

func (n *htmlNode) Attribute(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n *htmlNode) TextContent() string {
	return n.sel.Text()
}

func (n *htmlNode) InlineStyle() map[string]string {
	style, ok := n.sel.Attr("style")
	if !ok || strings.TrimSpace(style) == "" {
		return map[string]string{}
	}
	return ParseInlineStyle(style)
}
