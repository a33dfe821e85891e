// internal/network/proxy_test.go
package network

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/elazarl/goproxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClient_RoutesThroughProxy(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = io.WriteString(w, "body{}")
	}))
	defer origin.Close()

	var seen atomic.Int32
	proxy := goproxy.NewProxyHttpServer()
	proxy.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		seen.Add(1)
		r.Header.Set("Via", "test-proxy")
		return r, nil
	})
	proxySrv := httptest.NewServer(proxy)
	defer proxySrv.Close()

	proxyURL, err := url.Parse(proxySrv.URL)
	require.NoError(t, err)

	cfg := NewDefaultClientConfig()
	cfg.Logger = zap.NewNop()
	cfg.ProxyURL = proxyURL
	client := NewClient(cfg)
	defer client.CloseIdleConnections()

	resp, err := client.Get(origin.URL + "/site.css")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(body))
	assert.Equal(t, int32(1), seen.Load())
}

func TestNewClient_ProxyShortCircuit(t *testing.T) {
	proxy := goproxy.NewProxyHttpServer()
	proxy.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		return r, goproxy.NewResponse(r, goproxy.ContentTypeText, http.StatusForbidden, "blocked")
	})
	proxySrv := httptest.NewServer(proxy)
	defer proxySrv.Close()

	proxyURL, err := url.Parse(proxySrv.URL)
	require.NoError(t, err)

	cfg := NewDefaultClientConfig()
	cfg.Logger = zap.NewNop()
	cfg.ProxyURL = proxyURL
	fetcher := NewHTTPFetcher(NewClient(cfg), FetcherConfig{}, zap.NewNop())

	// The origin is never contacted, so any host will do.
	target, err := url.Parse("http://unreachable.invalid/app.js")
	require.NoError(t, err)
	resp, err := fetcher.Fetch(t.Context(), &Request{URL: target})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
