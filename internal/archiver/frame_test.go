// internal/archiver/frame_test.go
package archiver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_EnqueueIdentity(t *testing.T) {
	f := newFrame(newTestSession(), nil, mustParse(t, pageURL), "", nil)
	f.mu.Lock()
	defer f.mu.Unlock()

	enqueue := func(raw string, typ ResourceType) bool {
		return f.enqueueLocked(mustParse(t, raw), typ, false) != nil
	}

	assert.True(t, enqueue("http://example.com/a.png", TypeImage))
	assert.False(t, enqueue("http://example.com/a.png#x", TypeImage), "fragment does not change identity")
	assert.True(t, enqueue("http://example.com/a.png", TypeThumbnail), "thumbnail is its own class")

	assert.True(t, enqueue("http://example.com/s.css", TypeLink))
	assert.False(t, enqueue("http://example.com/s.css", TypeStylesheet))

	assert.False(t, enqueue("http://example.com/a.png", TypeUnknown), "second-order URLs dedupe across types")
	assert.True(t, enqueue("http://example.com/new.woff", TypeUnknown))
	assert.False(t, enqueue("http://example.com/new.woff", TypeUnknown))

	assert.False(t, enqueue(pageURL, TypeLink), "self link")
	assert.False(t, enqueue(pageURL+"#section", TypeFrame), "self frame")
	assert.True(t, enqueue(pageURL, TypeScript))

	assert.False(t, enqueue("data:text/plain,hello", TypeImage))
	assert.Nil(t, f.enqueueLocked(nil, TypeImage, false))

	total, succeeded, failed := f.Counts()
	assert.EqualValues(t, 5, total)
	assert.Zero(t, succeeded)
	assert.Zero(t, failed)
	assert.Len(t, f.pending, 5)
}

func TestFrame_EmptyDocumentCompletesOnce(t *testing.T) {
	f := newFrame(newTestSession(), nil, mustParse(t, pageURL), "", nil)

	calls := 0
	f.start(func(done *Frame) {
		assert.Same(t, f, done)
		calls++
	})
	f.start(func(*Frame) { calls++ })

	assert.Equal(t, 1, calls)
	assert.Equal(t, stateComplete, f.state)
	assert.Empty(t, f.completedResources())
}

func TestFrame_CancelledSessionDoesNotStart(t *testing.T) {
	sess := newTestSession()
	sess.cancelled.Store(true)
	f := newFrame(sess, nil, mustParse(t, pageURL), "<html></html>", nil)

	f.start(func(*Frame) { t.Fatal("completion must not fire") })
	assert.Equal(t, stateCreated, f.state)
}

func TestFrame_HasAncestorURL(t *testing.T) {
	sess := newTestSession()
	root := newFrame(sess, nil, mustParse(t, pageURL), "", nil)
	child := newFrame(sess, root, mustParse(t, "http://example.com/child"), "", nil)
	grandchild := newFrame(sess, child, mustParse(t, "http://example.com/grandchild"), "", nil)

	assert.True(t, grandchild.hasAncestorURL(mustParse(t, pageURL+"#frag")))
	assert.True(t, grandchild.hasAncestorURL(mustParse(t, "http://example.com/child")))
	assert.True(t, grandchild.hasAncestorURL(mustParse(t, "http://example.com/grandchild")))
	assert.False(t, grandchild.hasAncestorURL(mustParse(t, "http://example.com/other")))
	assert.Same(t, root, grandchild.root())
}

func TestFrame_ParsesDocumentAndDerivesTitle(t *testing.T) {
	f := newFrame(newTestSession(), nil, mustParse(t, pageURL), page("<title>Doc</title>", ""), nil)
	require.NotNil(t, f.doc)

	f.start(func(*Frame) {})
	assert.Equal(t, "Doc", f.Title())
}

func TestDecodableImageMIME(t *testing.T) {
	mimeType, ok := decodableImageMIME(pngBytes(t, 1))
	assert.True(t, ok)
	assert.Equal(t, "image/png", mimeType)

	mimeType, ok = decodableImageMIME(icoBytes(t, 16))
	assert.True(t, ok, "icon files are images")
	assert.Equal(t, "image/x-icon", mimeType)

	_, ok = decodableImageMIME([]byte("<svg></svg>"))
	assert.False(t, ok)
	_, ok = decodableImageMIME(nil)
	assert.False(t, ok)
}
