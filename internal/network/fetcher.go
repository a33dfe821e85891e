// File: internal/network/fetcher.go
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Request describes a single GET issued on behalf of a page resource.
type Request struct {
	URL    *url.URL
	Header http.Header
}

// Response is the result of a Fetch. The caller owns Body and must close it.
type Response struct {
	// URL is the final URL after redirects.
	URL        *url.URL
	StatusCode int
	Header     http.Header
	// MIMEType is the media type from Content-Type without parameters, or ""
	// when the server did not declare one.
	MIMEType string
	// Charset is the charset parameter of Content-Type, if any.
	Charset string
	Body    io.ReadCloser
}

// Fetcher retrieves a URL. Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherConfig bounds how hard a Fetcher hits the network.
type FetcherConfig struct {
	// MaxConcurrency caps in-flight requests. Zero means unbounded.
	MaxConcurrency int
	// RateLimit is requests per second. Zero disables pacing.
	RateLimit float64
	RateBurst int
}

// HTTPFetcher is the default Fetcher, backed by an http.Client.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	logger  *zap.Logger
}

// NewHTTPFetcher creates a fetcher around client. A nil client gets NewClient(nil).
func NewHTTPFetcher(client *http.Client, cfg FetcherConfig, logger *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = NewClient(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &HTTPFetcher{client: client, logger: logger.Named("fetcher")}
	if cfg.MaxConcurrency > 0 {
		f.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrency))
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return f
}

// Fetch implements Fetcher. Any response the server produced is returned,
// including 4xx and 5xx; classifying status codes is the caller's decision.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("fetch request has no URL")
	}

	if f.sem != nil {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for a fetch slot: %w", err)
		}
	}
	release := f.releaseOnce()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			release()
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL.String(), nil)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to build request for %s: %w", req.URL, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		release()
		return nil, fmt.Errorf("GET %s: %w", req.URL, err)
	}
	f.logger.Debug("Fetched",
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	mediaType, charset := ParseContentType(resp.Header.Get("Content-Type"))
	return &Response{
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		MIMEType:   mediaType,
		Charset:    charset,
		Body:       &slotBody{ReadCloser: resp.Body, release: release},
	}, nil
}

func (f *HTTPFetcher) releaseOnce() func() {
	if f.sem == nil {
		return func() {}
	}
	var once sync.Once
	return func() { once.Do(func() { f.sem.Release(1) }) }
}

// slotBody gives the concurrency slot back when the body is closed.
type slotBody struct {
	io.ReadCloser
	release func()
}

func (b *slotBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}

// ParseContentType splits a Content-Type header into its media type and
// charset. Malformed headers fall back to the text before the first ';'.
func ParseContentType(header string) (mediaType, charset string) {
	if header == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(header)
	if err != nil {
		header, _, _ = strings.Cut(header, ";")
		return strings.ToLower(strings.TrimSpace(header)), ""
	}
	return mt, params["charset"]
}
