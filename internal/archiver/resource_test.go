// internal/archiver/resource_test.go
package archiver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webarchiver/internal/document"
	"github.com/xkilldash9x/webarchiver/internal/urlresolve"
)

func newTestSession() *session {
	return &session{
		ctx:         context.Background(),
		parser:      document.NewParser(),
		resolver:    urlresolve.New(0),
		userAgent:   DefaultUserAgent,
		imageAccept: DefaultImageAccept,
		logger:      zap.NewNop(),
		progress:    &progressReporter{},
	}
}

// storedResource fakes a downloaded resource whose body is body.
func storedResource(t *testing.T, rawURL, mimeType, body string) *Resource {
	t.Helper()
	u := mustParse(t, rawURL)
	f := newFrame(newTestSession(), nil, mustParse(t, pageURL), "", nil)
	r := newResource(f, u, TypeLink, false)

	path := filepath.Join(t.TempDir(), "body")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	r.storagePath = path
	r.size = int64(len(body))
	r.mimeType = mimeType
	r.outcome = outcomeSucceeded
	return r
}

func TestExtractImportedURLs_Stylesheet(t *testing.T) {
	css := `
		@font-face { src: url('/fonts/a.woff2') format("woff2"), url(/fonts/a.woff); }
		.hero { background: url("../img/hero%20one.png") no-repeat; }
		.dup  { background: url(/fonts/a.woff); }
		.rel  { background: url(img/relative.png); }
		.data { background: url(data:image/png;base64,AAAA); }
	`
	r := storedResource(t, "http://example.com/css/site.css", "text/css", css)

	var got []string
	for _, u := range r.extractImportedURLs() {
		got = append(got, u.String())
	}
	assert.Equal(t, []string{
		"http://example.com/fonts/a.woff2",
		"http://example.com/fonts/a.woff",
		"http://example.com/img/hero%20one.png",
	}, got)
}

func TestExtractImportedURLs_StylesheetImports(t *testing.T) {
	css := `@import "/css/base.css";
		@import '../print.css' print;
		@IMPORT url("/css/theme.css") screen;
		@import "/css/base.css";
		body { color: black }`
	r := storedResource(t, "http://example.com/css/site.css", "text/css", css)

	var got []string
	for _, u := range r.extractImportedURLs() {
		got = append(got, u.String())
	}
	assert.Equal(t, []string{
		"http://example.com/css/base.css",
		"http://example.com/print.css",
		"http://example.com/css/theme.css",
	}, got)
}

func TestExtractImportedURLs_HTML(t *testing.T) {
	html := `<html><head>
		<link rel="stylesheet" href="/a.css">
		<LINK REL='Shortcut  Icon' HREF='/favicon.ico'>
		<link href=/app.webmanifest rel=manifest>
		<link rel="preconnect" href="https://cdn.example.com">
		<link rel="stylesheet">
	</head></html>`
	r := storedResource(t, "http://example.com/frame.html", "text/html; charset=utf-8", html)

	var got []string
	for _, u := range r.extractImportedURLs() {
		got = append(got, u.String())
	}
	assert.Equal(t, []string{
		"http://example.com/a.css",
		"http://example.com/favicon.ico",
		"http://example.com/app.webmanifest",
	}, got)
}

func TestExtractImportedURLs_IgnoresOtherTypes(t *testing.T) {
	r := storedResource(t, "http://example.com/a.js", "text/javascript", `url(/x.png)`)
	assert.Empty(t, r.extractImportedURLs())

	r = storedResource(t, "http://example.com/a.css", "text/css", `url(/x.png)`)
	r.outcome = outcomeFailed
	assert.Empty(t, r.extractImportedURLs())
}

func TestResource_DataWithoutBody(t *testing.T) {
	f := newFrame(newTestSession(), nil, mustParse(t, pageURL), "", nil)
	r := newResource(f, mustParse(t, "http://example.com/a.png"), TypeImage, false)

	data, err := r.Data()
	assert.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, "image/data", r.MIMEType())
	assert.False(t, r.Succeeded())
}

func TestScratchExtension(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"http://example.com/a.png", ".png"},
		{"http://example.com/style.min.css?v=3", ".css"},
		{"http://example.com/dir/", ""},
		{"http://example.com/file.tar-gz", ""},
		{"http://example.com/file.averyverylongext", ""},
		{"http://example.com/noext", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, scratchExtension(mustParse(t, tt.raw)))
		})
	}
}
