// internal/archiver/session.go
package archiver

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webarchiver/internal/document"
	"github.com/xkilldash9x/webarchiver/internal/network"
	"github.com/xkilldash9x/webarchiver/internal/urlresolve"
)

const (
	DefaultUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"
	DefaultImageAccept = "image/webp,image/apng,image/*,*/*;q=0.8"
)

// session is the state shared by every frame of one archive run.
type session struct {
	ctx        context.Context
	fetcher    network.Fetcher
	parser     document.Parser
	resolver   *urlresolve.Resolver
	scratchDir string
	// jar is nil for private sessions.
	jar         http.CookieJar
	userAgent   string
	imageAccept string
	logger      *zap.Logger
	metrics     *Metrics
	progress    *progressReporter

	seq       atomic.Uint64
	cancelled atomic.Bool
}

func (s *session) nextSeq() uint64 {
	return s.seq.Add(1)
}

func (s *session) isCancelled() bool {
	return s.cancelled.Load() || s.ctx.Err() != nil
}

// requestHeader builds the policy headers for a fetch made on behalf of a
// document at referrer.
func (s *session) requestHeader(target *url.URL, t ResourceType, referrer *url.URL) http.Header {
	h := http.Header{}
	h.Set("User-Agent", s.userAgent)
	if t == TypeImage || t == TypeThumbnail {
		h.Set("Accept", s.imageAccept)
	} else {
		h.Set("Accept", "*/*")
	}
	if referrer != nil {
		h.Set("Referer", referrer.String())
		h.Set("Origin", referrer.Scheme+"://"+referrer.Host)
	}
	if s.jar != nil {
		var pairs []string
		for _, c := range s.jar.Cookies(target) {
			pairs = append(pairs, c.String())
		}
		if len(pairs) > 0 {
			h.Set("Cookie", strings.Join(pairs, "; "))
		}
	}
	return h
}

// storeCookies records Set-Cookie headers for later fetches.
func (s *session) storeCookies(u *url.URL, header http.Header) {
	if s.jar == nil || u == nil {
		return
	}
	if cookies := (&http.Response{Header: header}).Cookies(); len(cookies) > 0 {
		s.jar.SetCookies(u, cookies)
	}
}

// progressReporter forwards aggregate progress, never reporting a value lower
// than one already reported.
type progressReporter struct {
	mu   sync.Mutex
	last float64
	fn   func(float64)
}

func (p *progressReporter) report(done, total int64) {
	if p == nil || p.fn == nil {
		return
	}
	value := 0.0
	if total > 0 {
		value = math.Min(1, float64(done)/float64(total))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if value < p.last {
		value = p.last
	}
	p.last = value
	p.fn(value)
}
