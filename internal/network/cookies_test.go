// internal/network/cookies_test.go
package network

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCookieJar(t *testing.T) {
	page := mustURL(t, "https://www.example.com/article")
	jar, err := NewCookieJar(page, []*http.Cookie{
		{Name: "session", Value: "abc"},
		{Name: "cdn", Value: "1", Domain: ".static.example.com", Path: "/"},
		{Name: "secure", Value: "s", Domain: "www.example.com", Secure: true},
		{Name: "", Value: "ignored"},
		nil,
	})
	require.NoError(t, err)

	names := func(raw string) []string {
		var out []string
		for _, c := range jar.Cookies(mustURL(t, raw)) {
			out = append(out, c.Name)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"session", "secure"}, names("https://www.example.com/img.png"))
	assert.ElementsMatch(t, []string{"cdn"}, names("http://static.example.com/a.css"))
	assert.Empty(t, names("https://other.test/"))
}
