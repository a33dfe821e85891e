// internal/archiver/builder.go
package archiver

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/webarchiver/internal/sniff"
	"github.com/xkilldash9x/webarchiver/internal/webarchive"
)

const htmlMIMEType = "text/html"

// builder turns a completed frame tree into archive records.
type builder struct {
	codec  *webarchive.ResponseCodec
	logger *zap.Logger
}

// build returns the artifact bytes and their MIME type for a completed root
// frame. A frame whose only content is one image or PDF degenerates to that
// payload.
func (b *builder) build(root *Frame) ([]byte, string, error) {
	if data, mimeType, ok := b.singlePayload(root); ok {
		b.logger.Info("Page is a single document, archiving the raw payload.", zap.String("mime_type", mimeType))
		return data, mimeType, nil
	}

	archive := b.archive(root)
	data, err := archive.Encode()
	if err != nil {
		return nil, "", err
	}
	return data, webarchive.MIMEType, nil
}

// archive builds the nested record for f and its descendants.
func (b *builder) archive(f *Frame) *webarchive.Archive {
	a := &webarchive.Archive{
		MainResource: webarchive.Resource{
			URL:              f.url.String(),
			MIMEType:         htmlMIMEType,
			Data:             []byte(f.html),
			TextEncodingName: "UTF-8",
			FrameName:        webarchive.MainFrameName(),
		},
	}

	for _, r := range f.completedResources() {
		if !r.Succeeded() || r.size == 0 {
			continue
		}
		data, err := r.Data()
		if err != nil {
			b.logger.Warn("Dropping resource with unreadable body.", zap.String("url", r.URL.String()), zap.Error(err))
			continue
		}
		u := r.URL.String()
		respURL := u
		if r.finalURL != nil {
			respURL = r.finalURL.String()
		}
		a.Subresources = append(a.Subresources, webarchive.Resource{
			URL:      u,
			MIMEType: r.mimeType,
			Data:     data,
			Response: b.codec.Encode(webarchive.ResponseMeta{
				URL:        respURL,
				MIMEType:   r.mimeType,
				StatusCode: r.status,
				Header:     r.header,
			}),
		})
	}

	for _, child := range f.Children() {
		sub := b.archive(child)
		if len(sub.MainResource.Data) == 0 && len(sub.Subresources) == 0 && len(sub.SubframeArchives) == 0 {
			continue
		}
		a.SubframeArchives = append(a.SubframeArchives, *sub)
	}
	return a
}

// singlePayload reports whether the root frame holds exactly one completed
// resource, with no child frames, and that resource is a PDF or was
// referenced as an image. Icons and stylesheets never replace the page.
func (b *builder) singlePayload(root *Frame) ([]byte, string, bool) {
	if len(root.Children()) > 0 {
		return nil, "", false
	}
	completed := root.completedResources()
	if len(completed) != 1 || !completed[0].Succeeded() {
		return nil, "", false
	}
	r := completed[0]
	data, err := r.Data()
	if err != nil || len(data) == 0 {
		return nil, "", false
	}

	ft := sniff.Classify(data)
	switch {
	case ft == sniff.PDF:
		return data, ft.MIMEType(), true
	case r.Type != TypeImage:
		return nil, "", false
	case ft.IsImage():
		return data, ft.MIMEType(), true
	}
	return data, r.mimeType, true
}
