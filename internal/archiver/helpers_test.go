// internal/archiver/helpers_test.go
package archiver

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webarchiver/internal/network"
)

const pageURL = "http://example.com/page"

type fakeResponse struct {
	status int
	mime   string
	body   []byte
	header http.Header
	err    error
	// location, when set, is reported as the URL the response came from,
	// as after a redirect.
	location string
}

// fakeFetcher serves canned responses keyed by URL. Unknown URLs get an
// empty 404.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	requests  []string
	headers   map[string]http.Header
	// block, when set, holds every fetch until it is closed or the
	// request context ends.
	block chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]fakeResponse),
		headers:   make(map[string]http.Header),
	}
}

func (f *fakeFetcher) serve(rawURL, mime string, body []byte) *fakeFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[rawURL] = fakeResponse{status: http.StatusOK, mime: mime, body: body}
	return f
}

func (f *fakeFetcher) serveResponse(rawURL string, resp fakeResponse) *fakeFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[rawURL] = resp
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *network.Request) (*network.Response, error) {
	key := req.URL.String()
	f.mu.Lock()
	f.requests = append(f.requests, key)
	f.headers[key] = req.Header.Clone()
	canned, ok := f.responses[key]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		canned = fakeResponse{status: http.StatusNotFound}
	}
	if canned.err != nil {
		return nil, canned.err
	}

	header := canned.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if canned.mime != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", canned.mime)
	}
	final := req.URL
	if canned.location != "" {
		final, _ = url.Parse(canned.location)
	}
	return &network.Response{
		URL:        final,
		StatusCode: canned.status,
		Header:     header,
		MIMEType:   canned.mime,
		Body:       io.NopCloser(bytes.NewReader(canned.body)),
	}, nil
}

// count returns how many times rawURL was requested.
func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == rawURL {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) requestHeader(rawURL string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[rawURL]
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// pngBytes encodes a blank PNG of the given size.
func pngBytes(t *testing.T, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, size, size))))
	return buf.Bytes()
}

// icoBytes wraps a PNG of the given size in a single-entry icon file, the
// way browsers' favicon.ico files usually are.
func icoBytes(t *testing.T, size int) []byte {
	t.Helper()
	img := pngBytes(t, size)
	var buf bytes.Buffer
	// ICONDIR: reserved, type 1 (icon), one image.
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1}))
	// ICONDIRENTRY for the embedded PNG, stored right after the directory.
	buf.Write([]byte{byte(size), byte(size), 0, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, struct {
		Planes, BitCount uint16
		Size, Offset     uint32
	}{1, 32, uint32(len(img)), 6 + 16}))
	buf.Write(img)
	return buf.Bytes()
}

func testOptions(t *testing.T, fetcher network.Fetcher, html string) Options {
	t.Helper()
	return Options{
		URL:        mustParse(t, pageURL),
		HTML:       html,
		Fetcher:    fetcher,
		ScratchDir: t.TempDir(),
		Logger:     zap.NewNop(),
	}
}

func newTestArchiver(t *testing.T, opts Options) *Archiver {
	t.Helper()
	a, err := New(context.Background(), opts)
	require.NoError(t, err)
	return a
}

func waitResult(t *testing.T, a *Archiver) (*Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Wait(ctx)
}

func page(head, body string) string {
	var b strings.Builder
	b.WriteString("<html><head>")
	b.WriteString(head)
	b.WriteString("</head><body>")
	b.WriteString(body)
	b.WriteString("</body></html>")
	return b.String()
}

// recorder collects progress values.
type recorder struct {
	mu     sync.Mutex
	values []float64
}

func (r *recorder) record(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.values...)
}
