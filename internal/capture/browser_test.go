// internal/capture/browser_test.go
package capture

import (
	"context"
	"net/url"
	"testing"
	"time"

	cdpnetwork "github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestConvertCookies(t *testing.T) {
	in := []*cdpnetwork.Cookie{
		{Name: "sid", Value: "abc", Domain: ".example.com", Path: "/", Secure: true, HTTPOnly: true, Expires: 1700000000.5},
		{Name: "pref", Value: "dark", Domain: "example.com", Path: "/app", Session: true, Expires: -1},
		{Name: "", Value: "ignored"},
		nil,
	}

	out := convertCookies(in)
	require.Len(t, out, 2)

	assert.Equal(t, "sid", out[0].Name)
	assert.Equal(t, ".example.com", out[0].Domain)
	assert.True(t, out[0].Secure)
	assert.True(t, out[0].HttpOnly)
	assert.Equal(t, time.Unix(1700000000, 500000000), out[0].Expires)

	assert.Equal(t, "pref", out[1].Name)
	assert.Equal(t, "/app", out[1].Path)
	assert.True(t, out[1].Expires.IsZero())
}

func TestExecOptions(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions)

	opts := execOptions(BrowserConfig{Headless: true})
	assert.Len(t, opts, base+2)

	opts = execOptions(BrowserConfig{
		Headless:  false,
		UserAgent: "test-agent",
		Args:      []string{"--window-size=1280,800", "mute-audio", "--"},
	})
	assert.Len(t, opts, base+2+1+1+2)
}

func TestBrowserSource_CloseWithoutCapture(t *testing.T) {
	u := mustURL(t, "https://example.com/")
	src := NewBrowserSource(context.Background(), u, BrowserConfig{Headless: true}, zaptest.NewLogger(t))
	assert.NotPanics(t, src.Close)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
