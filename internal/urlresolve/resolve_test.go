// internal/urlresolve/resolve_test.go
package urlresolve

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		base     string
		expected string
	}{
		{"Parent relative", "../img/a.png", "https://x.com/a/b/c.html", "https://x.com/a/img/a.png"},
		{"Double parent relative", "../../img/a.png", "https://x.com/a/b/c.html", "https://x.com/img/a.png"},
		{"Parent relative from root", "../a.png", "https://x.com/", "https://x.com/a.png"},
		{"Protocol relative", "//cdn.x.com/s.js", "https://x.com/", "https://cdn.x.com/s.js"},
		{"Protocol relative keeps http", "//cdn.x.com/s.js", "http://x.com/", "http://cdn.x.com/s.js"},
		{"Root relative", "/x", "http://x.com/y", "http://x.com/x"},
		{"Root relative keeps port and query", "/x?v=1", "http://x.com:8080/y", "http://x.com:8080/x?v=1"},
		{"Absolute passthrough", "https://other.com/p.css", "http://x.com/", "https://other.com/p.css"},
		{"Quoted absolute", `"https://other.com/p.css"`, "http://x.com/", "https://other.com/p.css"},
		{"Single quoted root relative", `'/img.png'`, "https://x.com/a/", "https://x.com/img.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(16)
			got := r.Resolve(tt.ref, mustParse(t, tt.base))
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, got.String())
		})
	}
}

func TestResolve_Failures(t *testing.T) {
	base := mustParse(t, "https://x.com/a/b.html")
	r := New(16)
	for _, ref := range []string{"", "img/a.png", "data:image/png;base64,AAAA", "javascript:void(0)", "mailto:a@x.com", "ftp://x.com/file"} {
		assert.Nil(t, r.Resolve(ref, base), "reference %q should not resolve", ref)
	}
	assert.Nil(t, r.Resolve("/x", nil))
}

func TestResolve_MemoizedResultsAreIndependent(t *testing.T) {
	r := New(4)
	base := mustParse(t, "https://x.com/a/")

	first := r.Resolve("/p.png", base)
	require.NotNil(t, first)
	first.Path = "/mutated"

	second := r.Resolve("/p.png", base)
	require.NotNil(t, second)
	assert.Equal(t, "https://x.com/p.png", second.String())

	// Negative results are memoized as well.
	assert.Nil(t, r.Resolve("relative.png", base))
	assert.Nil(t, r.Resolve("relative.png", base))
}

func TestResolve_WithoutCache(t *testing.T) {
	r := New(0)
	got := r.Resolve("/x", mustParse(t, "http://x.com/y"))
	require.NotNil(t, got)
	assert.Equal(t, "http://x.com/x", got.String())
}

func TestForFetch(t *testing.T) {
	t.Cleanup(func() { SetForceHTTPS(false) })

	u := mustParse(t, "http://x.com/a.png")
	assert.Same(t, u, ForFetch(u), "no upgrade when the toggle is off")

	SetForceHTTPS(true)
	assert.True(t, ForceHTTPS())
	upgraded := ForFetch(u)
	assert.Equal(t, "https://x.com/a.png", upgraded.String())
	assert.Equal(t, "http", u.Scheme, "original URL must not be mutated")

	secure := mustParse(t, "https://x.com/b.png")
	assert.Same(t, secure, ForFetch(secure))
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, "https://x.com/a.css", Identity(mustParse(t, "https://x.com/a.css#section")))
	assert.Equal(t, "https://x.com/a.css?v=2", Identity(mustParse(t, "https://x.com/a.css?v=2")))
	assert.Equal(t, "", Identity(nil))
}
