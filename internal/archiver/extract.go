// internal/archiver/extract.go
package archiver

import (
	"net/url"
	"strings"

	"github.com/xkilldash9x/webarchiver/internal/document"
	"github.com/xkilldash9x/webarchiver/internal/urlresolve"
)

// Meta is descriptive page metadata taken from <meta> tags or a bundle.
type Meta struct {
	Author   string
	Blurb    string
	Keywords string
}

// IsZero reports whether no field is set.
func (m Meta) IsZero() bool {
	return m == Meta{}
}

// merge fills fields of m that are empty from other.
func (m Meta) merge(other Meta) Meta {
	if m.Author == "" {
		m.Author = other.Author
	}
	if m.Blurb == "" {
		m.Blurb = other.Blurb
	}
	if m.Keywords == "" {
		m.Keywords = other.Keywords
	}
	return m
}

// extractResources returns the candidate URLs of type t: supplied URLs
// resolved by resolver, then tag sources from doc, then (for stylesheets)
// <link rel=stylesheet> hrefs. Unresolvable candidates are dropped.
func extractResources(doc document.Document, t ResourceType, supplied []string, base *url.URL, resolver *urlresolve.Resolver) []*url.URL {
	var out []*url.URL
	for _, raw := range supplied {
		if u := resolver.Resolve(raw, base); u != nil {
			out = append(out, u)
		}
	}
	if doc == nil {
		return out
	}

	if tag := t.Tag(); tag != "" {
		attr := t.sourceAttribute()
		for _, node := range doc.Query(tag) {
			value, ok := node.Attribute(attr)
			if (!ok || strings.TrimSpace(value) == "") && (t == TypeImage || t == TypeVideo) {
				value, ok = node.Attribute("data-original")
			}
			if !ok {
				continue
			}
			if u := resolveDOMReference(value, base); u != nil {
				out = append(out, u)
			}
		}
	}

	if t == TypeStylesheet {
		for _, node := range doc.Query("link[rel]") {
			if !relIs(node, "stylesheet") {
				continue
			}
			if href, ok := node.Attribute("href"); ok {
				if u := resolveDOMReference(href, base); u != nil {
					out = append(out, u)
				}
			}
		}
	}
	return out
}

// extractInlineBackgrounds returns background-image URLs from style attributes.
func extractInlineBackgrounds(doc document.Document, base *url.URL) []*url.URL {
	if doc == nil {
		return nil
	}
	var out []*url.URL
	for _, node := range doc.Query("[style]") {
		value, ok := node.InlineStyle()["background-image"]
		if !ok {
			continue
		}
		ref, ok := document.URLFragment(value)
		if !ok {
			continue
		}
		if u := resolveDOMReference(ref, base); u != nil {
			out = append(out, u)
		}
	}
	return out
}

// extractThumbnail picks the page icon. An apple-touch-icon is primary and
// wins outright; otherwise the first shortcut icon is used.
func extractThumbnail(doc document.Document, base *url.URL) (u *url.URL, primary bool) {
	if doc == nil {
		return nil, false
	}
	var fallback *url.URL
	for _, node := range doc.Query("link[rel]") {
		href, ok := node.Attribute("href")
		if !ok {
			continue
		}
		switch {
		case relIs(node, "apple-touch-icon"):
			if candidate := resolveDOMReference(href, base); candidate != nil {
				return candidate, true
			}
		case fallback == nil && (relIs(node, "shortcut icon") || relIs(node, "icon")):
			fallback = resolveDOMReference(href, base)
		}
	}
	return fallback, false
}

// extractTitle prefers <title>, then og:title, then a title meta tag.
func extractTitle(doc document.Document) string {
	if doc == nil {
		return ""
	}
	if node := doc.First("title"); node != nil {
		if title := collapseSpace(node.TextContent()); title != "" {
			return title
		}
	}
	for _, name := range []string{"og:title", "title"} {
		if content, ok := doc.MetaContent(name); ok {
			if title := collapseSpace(content); title != "" {
				return title
			}
		}
	}
	return ""
}

func extractMeta(doc document.Document) Meta {
	if doc == nil {
		return Meta{}
	}
	get := func(names ...string) string {
		for _, name := range names {
			if content, ok := doc.MetaContent(name); ok && strings.TrimSpace(content) != "" {
				return strings.TrimSpace(content)
			}
		}
		return ""
	}
	return Meta{
		Author:   get("author", "article:author"),
		Blurb:    get("description", "og:description"),
		Keywords: get("keywords"),
	}
}

// bodyText is the whitespace-collapsed text of <body>.
func bodyText(doc document.Document) string {
	if doc == nil {
		return ""
	}
	node := doc.First("body")
	if node == nil {
		return ""
	}
	return collapseSpace(node.TextContent())
}

// documentBase honours a <base href> element, falling back to frameURL.
func documentBase(doc document.Document, frameURL *url.URL) *url.URL {
	if doc == nil {
		return frameURL
	}
	if node := doc.First("base[href]"); node != nil {
		href, _ := node.Attribute("href")
		if u := resolveDOMReference(href, frameURL); u != nil {
			return u
		}
	}
	return frameURL
}

// resolveDOMReference resolves an attribute value the way a browser would,
// keeping only http(s) results.
func resolveDOMReference(ref string, base *url.URL) *url.URL {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || base == nil {
		return nil
	}
	u, err := base.Parse(ref)
	if err != nil {
		return nil
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil
	}
	return u
}

func relIs(node document.Node, want string) bool {
	rel, ok := node.Attribute("rel")
	if !ok {
		return false
	}
	return strings.EqualFold(collapseSpace(rel), want)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
