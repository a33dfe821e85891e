// internal/webarchive/archive.go
package webarchive

import (
	"fmt"

	"howett.net/plist"
)

// MIMEType is the media type of an encoded Archive.
const MIMEType = "application/x-webarchive"

// Resource is one archived response body.
type Resource struct {
	URL              string  `plist:"WebResourceURL"`
	MIMEType         string  `plist:"WebResourceMIMEType"`
	Data             []byte  `plist:"WebResourceData"`
	TextEncodingName string  `plist:"WebResourceTextEncodingName,omitempty"`
	FrameName        *string `plist:"WebResourceFrameName,omitempty"`
	// Response is an encoded response record, see ResponseCodec.
	Response []byte `plist:"WebResourceResponse,omitempty"`
}

// Archive is the nested record for one document and everything it loaded.
type Archive struct {
	MainResource     Resource   `plist:"WebMainResource"`
	Subresources     []Resource `plist:"WebSubresources,omitempty"`
	SubframeArchives []Archive  `plist:"WebSubframeArchives,omitempty"`
}

// MainFrameName is the frame name carried by every main resource.
func MainFrameName() *string {
	name := ""
	return &name
}

// Encode serializes the archive as a binary property list.
func (a *Archive) Encode() ([]byte, error) {
	data, err := plist.Marshal(a, plist.BinaryFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode web archive: %w", err)
	}
	return data, nil
}

// Decode parses an encoded archive in any property list format.
func Decode(data []byte) (*Archive, error) {
	var a Archive
	if _, err := plist.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode web archive: %w", err)
	}
	return &a, nil
}

// Walk visits a and every nested subframe archive depth first.
func (a *Archive) Walk(fn func(depth int, archive *Archive)) {
	a.walk(0, fn)
}

func (a *Archive) walk(depth int, fn func(int, *Archive)) {
	fn(depth, a)
	for i := range a.SubframeArchives {
		a.SubframeArchives[i].walk(depth+1, fn)
	}
}
