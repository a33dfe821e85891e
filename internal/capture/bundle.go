// internal/capture/bundle.go
package capture

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/webarchiver/internal/archiver"
)

// ErrInvalidBundle is returned for bundles missing the page URL or HTML.
var ErrInvalidBundle = errors.New("invalid page bundle")

// Bundle is page data extracted ahead of time, typically by a script run in
// the page. Resource lists are keyed by the type they seed.
type Bundle struct {
	URL         string   `json:"url"`
	HTML        string   `json:"html"`
	Title       string   `json:"title,omitempty"`
	Author      string   `json:"author,omitempty"`
	Description string   `json:"description,omitempty"`
	Keywords    string   `json:"keywords,omitempty"`
	Stylesheets []string `json:"stylesheets,omitempty"`
	VideoURLs   []string `json:"videoURLs,omitempty"`
	Scripts     []string `json:"scripts,omitempty"`
	LinkURLs    []string `json:"linkURLs,omitempty"`
	FrameURLs   []string `json:"frameURLs,omitempty"`
	ImageURLs   []string `json:"imageURLs,omitempty"`
}

// ParseBundle decodes and validates a JSON bundle.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode page bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadBundle reads and parses the bundle at path.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read page bundle: %w", err)
	}
	return ParseBundle(data)
}

// Validate requires an absolute http(s) URL and non-empty HTML.
func (b *Bundle) Validate() error {
	if strings.TrimSpace(b.HTML) == "" {
		return fmt.Errorf("%w: html is empty", ErrInvalidBundle)
	}
	if _, err := b.PageURL(); err != nil {
		return err
	}
	return nil
}

// PageURL parses the bundle's page URL.
func (b *Bundle) PageURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(b.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url %q is not an absolute http(s) URL", ErrInvalidBundle, b.URL)
	}
	return u, nil
}

// Apply copies the bundle into opts. Bundle values take precedence over
// anything the document would yield.
func (b *Bundle) Apply(opts *archiver.Options) error {
	u, err := b.PageURL()
	if err != nil {
		return err
	}
	opts.URL = u
	opts.HTML = b.HTML
	opts.Title = strings.TrimSpace(b.Title)
	opts.Meta = archiver.Meta{
		Author:   strings.TrimSpace(b.Author),
		Blurb:    strings.TrimSpace(b.Description),
		Keywords: strings.TrimSpace(b.Keywords),
	}

	urls := map[archiver.ResourceType][]string{
		archiver.TypeStylesheet: b.Stylesheets,
		archiver.TypeVideo:      b.VideoURLs,
		archiver.TypeScript:     b.Scripts,
		archiver.TypeLink:       b.LinkURLs,
		archiver.TypeFrame:      b.FrameURLs,
		archiver.TypeImage:      b.ImageURLs,
	}
	if opts.URLs == nil {
		opts.URLs = make(map[archiver.ResourceType][]string)
	}
	for t, list := range urls {
		if len(list) > 0 {
			opts.URLs[t] = append(opts.URLs[t], list...)
		}
	}
	return nil
}
