// internal/archiver/archiver.go
package archiver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webarchiver/internal/document"
	"github.com/xkilldash9x/webarchiver/internal/network"
	"github.com/xkilldash9x/webarchiver/internal/sniff"
	"github.com/xkilldash9x/webarchiver/internal/urlresolve"
	"github.com/xkilldash9x/webarchiver/internal/webarchive"
)

// PageSource captures state from a live or pre-rendered page. Every method
// is optional in effect: an error or empty value means the capture is
// unavailable and the archiver falls back to fetching or deriving it.
type PageSource interface {
	HTML(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	StylesheetURLs(ctx context.Context) ([]string, error)
	Cookies(ctx context.Context) ([]*http.Cookie, error)
}

// Options configures an Archiver.
type Options struct {
	URL *url.URL
	// HTML, when set, is used instead of capturing or fetching the page.
	HTML   string
	Source PageSource
	// URLs are resource URLs enumerated out of band, keyed by type.
	URLs map[ResourceType][]string
	// Title and Meta, when set, win over values derived from the document.
	Title string
	Meta  Meta
	// Cookies seed the session's cookie jar. Ignored when Private is set.
	Cookies []*http.Cookie
	Private bool

	Fetcher  network.Fetcher
	Parser   document.Parser
	Resolver *urlresolve.Resolver
	Codec    *webarchive.ResponseCodec

	UserAgent   string
	ImageAccept string
	// ScratchDir is the parent of each run's scratch directory. Empty means
	// the system temp directory.
	ScratchDir string

	Logger  *zap.Logger
	Metrics *Metrics
	// Progress receives aggregate completion in [0,1], never decreasing.
	Progress func(float64)
}

// Result is a finished archive.
type Result struct {
	// URL is the page URL after redirects; OriginalURL is the one requested.
	URL         *url.URL
	OriginalURL *url.URL
	Data        []byte
	MIMEType    string
	Title       string
	Meta        Meta
	Text        string
	Thumbnail   []byte
	// ThumbnailMIMEType is set when Thumbnail is.
	ThumbnailMIMEType string
	ScratchDir        string
	Resources         int64
	Failures          int64
}

// IsEmpty reports whether the result is too small to be a usable archive.
func (r *Result) IsEmpty() bool {
	return r == nil || len(r.Data) < 10
}

// Callback receives either a result or an error, never both.
type Callback func(*Result, error)

// Archiver archives one page. Archive may be called any number of times;
// the first call starts the run and later calls share its outcome.
type Archiver struct {
	opts   Options
	logger *zap.Logger
	parent context.Context

	mu sync.Mutex
	// gen identifies the current run so outcomes of a discarded run are ignored.
	gen        uint64
	running    bool
	done       bool
	result     *Result
	err        error
	callbacks  []Callback
	cancel     context.CancelFunc
	sess       *session
	scratchDir string
}

// New validates opts and returns an idle Archiver.
func New(ctx context.Context, opts Options) (*Archiver, error) {
	if opts.URL == nil {
		return nil, errors.New("archiver: a page URL is required")
	}
	if opts.URL.Scheme != "http" && opts.URL.Scheme != "https" {
		return nil, fmt.Errorf("archiver: unsupported URL scheme %q", opts.URL.Scheme)
	}
	if opts.Fetcher == nil {
		return nil, errors.New("archiver: a fetcher is required")
	}
	if opts.Parser == nil {
		opts.Parser = document.NewParser()
	}
	if opts.Resolver == nil {
		opts.Resolver = urlresolve.New(urlresolve.DefaultCacheSize)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Codec == nil {
		opts.Codec = webarchive.NewResponseCodec(nil, opts.Logger,
			webarchive.WithFallbackHook(func(error) { opts.Metrics.IncEncodingFallback() }))
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.ImageAccept == "" {
		opts.ImageAccept = DefaultImageAccept
	}

	return &Archiver{
		opts:   opts,
		logger: opts.Logger.Named("archiver").With(zap.String("url", opts.URL.String())),
		parent: ctx,
	}, nil
}

// Archive registers cb and starts the run if it is not already running.
// After a run has finished, cb is invoked immediately with its outcome.
func (a *Archiver) Archive(cb Callback) {
	a.mu.Lock()
	if a.done {
		result, err := a.result, a.err
		a.mu.Unlock()
		if cb != nil {
			cb(result, err)
		}
		return
	}
	if cb != nil {
		a.callbacks = append(a.callbacks, cb)
	}
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.gen++
	gen := a.gen
	ctx, cancel := context.WithCancel(a.parent)
	a.cancel = cancel
	a.mu.Unlock()

	// A cancelled parent context ends the run like Cancel does.
	context.AfterFunc(ctx, func() { a.finish(gen, nil, ErrCancelled) })
	go a.run(ctx, gen)
}

// Cancel fails every pending callback with ErrCancelled. In-flight fetches
// are cancelled through their context; their late results are ignored.
func (a *Archiver) Cancel() {
	a.mu.Lock()
	cancel, sess, gen := a.cancel, a.sess, a.gen
	a.mu.Unlock()

	if sess != nil {
		sess.cancelled.Store(true)
	}
	a.finish(gen, nil, ErrCancelled)
	if cancel != nil {
		cancel()
	}
}

// Reset discards a finished run's outcome so the next Archive starts over.
// It has no effect while a run is in progress.
func (a *Archiver) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.done {
		return
	}
	a.done = false
	a.running = false
	a.result = nil
	a.err = nil
	a.sess = nil
}

// ScratchDir is the scratch directory of the most recent run. The caller
// removes it once the result is no longer needed.
func (a *Archiver) ScratchDir() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scratchDir
}

// Wait blocks until the run finishes or ctx is done.
func (a *Archiver) Wait(ctx context.Context) (*Result, error) {
	type outcome struct {
		result *Result
		err    error
	}
	ch := make(chan outcome, 1)
	a.Archive(func(r *Result, err error) { ch <- outcome{r, err} })
	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// finish stores the terminal outcome of run gen and invokes pending
// callbacks in registration order. Only the first call per run has any effect.
func (a *Archiver) finish(gen uint64, result *Result, err error) {
	a.mu.Lock()
	if a.gen != gen || a.done || !a.running {
		a.mu.Unlock()
		return
	}
	a.done = true
	a.result, a.err = result, err
	callbacks := a.callbacks
	a.callbacks = nil
	cancel := a.cancel
	a.mu.Unlock()

	switch {
	case errors.Is(err, ErrCancelled):
		a.opts.Metrics.IncArchive("cancelled")
		a.logger.Info("Archive cancelled.")
	case err != nil:
		a.opts.Metrics.IncArchive("failed")
		a.logger.Error("Archive failed.", zap.Error(err))
	default:
		a.opts.Metrics.IncArchive("succeeded")
		a.logger.Info("Archive complete.",
			zap.String("mime_type", result.MIMEType),
			zap.Int("bytes", len(result.Data)),
			zap.Int64("resources", result.Resources),
			zap.Int64("failures", result.Failures))
	}

	if cancel != nil {
		cancel()
	}
	for _, cb := range callbacks {
		cb(result, err)
	}
}

// captures holds the outcome of the upfront PageSource captures.
type captures struct {
	html        string
	text        string
	stylesheets []string
	cookies     []*http.Cookie
}

// capture runs every PageSource capture concurrently and waits for all of
// them. Individual failures are logged and leave that field empty.
func (a *Archiver) capture(ctx context.Context) captures {
	var c captures
	src := a.opts.Source
	if src == nil {
		return c
	}

	var g errgroup.Group
	g.Go(func() error {
		html, err := src.HTML(ctx)
		a.logCapture("html", err)
		c.html = html
		return nil
	})
	g.Go(func() error {
		text, err := src.Text(ctx)
		a.logCapture("text", err)
		c.text = text
		return nil
	})
	g.Go(func() error {
		sheets, err := src.StylesheetURLs(ctx)
		a.logCapture("stylesheets", err)
		c.stylesheets = sheets
		return nil
	})
	g.Go(func() error {
		cookies, err := src.Cookies(ctx)
		a.logCapture("cookies", err)
		c.cookies = cookies
		return nil
	})
	_ = g.Wait()
	return c
}

func (a *Archiver) logCapture(what string, err error) {
	if err != nil {
		a.logger.Warn("Page capture unavailable.", zap.String("capture", what), zap.Error(err))
	}
}

func (a *Archiver) run(ctx context.Context, gen uint64) {
	opts := a.opts
	scratch, err := os.MkdirTemp(opts.ScratchDir, "webarchiver-*")
	if err != nil {
		a.finish(gen, nil, fmt.Errorf("failed to create scratch directory: %w", err))
		return
	}

	caps := a.capture(ctx)
	if ctx.Err() != nil {
		a.finish(gen, nil, ErrCancelled)
		return
	}

	var jar http.CookieJar
	if !opts.Private {
		seed := append(append([]*http.Cookie(nil), opts.Cookies...), caps.cookies...)
		if jar, err = network.NewCookieJar(opts.URL, seed); err != nil {
			a.logger.Warn("Continuing without cookies.", zap.Error(err))
			jar = nil
		}
	}

	sess := &session{
		ctx:         ctx,
		fetcher:     opts.Fetcher,
		parser:      opts.Parser,
		resolver:    opts.Resolver,
		scratchDir:  scratch,
		jar:         jar,
		userAgent:   opts.UserAgent,
		imageAccept: opts.ImageAccept,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		progress:    &progressReporter{fn: opts.Progress},
	}
	a.mu.Lock()
	a.sess = sess
	a.scratchDir = scratch
	cancelled := a.done || a.gen != gen
	a.mu.Unlock()
	if cancelled {
		sess.cancelled.Store(true)
		return
	}

	pageURL := opts.URL
	html := opts.HTML
	if html == "" {
		html = caps.html
	}
	if html == "" {
		page, err := a.fetchRoot(sess)
		if err != nil {
			a.finish(gen, nil, err)
			return
		}
		pageURL = page.url
		if page.fileType != sniff.Unknown {
			a.finishBinary(gen, page, scratch)
			return
		}
		html = page.html
	}

	supplied := make(map[ResourceType][]string, len(opts.URLs)+1)
	for t, urls := range opts.URLs {
		supplied[t] = append([]string(nil), urls...)
	}
	supplied[TypeStylesheet] = append(supplied[TypeStylesheet], caps.stylesheets...)

	root := newFrame(sess, nil, pageURL, html, supplied)
	b := &builder{codec: opts.Codec, logger: a.logger}
	root.start(func(f *Frame) {
		data, mimeType, err := b.build(f)
		if err != nil {
			a.finish(gen, nil, err)
			return
		}
		total, failures := subtreeCounts(f)

		result := &Result{
			URL:         pageURL,
			OriginalURL: opts.URL,
			Data:        data,
			MIMEType:    mimeType,
			Title:       firstNonEmpty(opts.Title, f.Title(), "Untitled"),
			Meta:        opts.Meta.merge(f.meta),
			Text:        firstNonEmpty(caps.text, bodyText(f.doc)),
			ScratchDir:  scratch,
			Resources:   total,
			Failures:    failures,
		}
		f.mu.Lock()
		result.Thumbnail, result.ThumbnailMIMEType = f.thumbnail, f.thumbnailMIME
		f.mu.Unlock()
		a.finish(gen, result, nil)
	})
}

// rootPage is the fetched root document.
type rootPage struct {
	url      *url.URL
	html     string
	body     []byte
	fileType sniff.FileType
}

// fetchRoot downloads the page itself. Transport errors and undecodable
// bodies are fatal; an error status still yields a document to archive.
func (a *Archiver) fetchRoot(sess *session) (*rootPage, error) {
	original := a.opts.URL
	target := urlresolve.ForFetch(original)
	header := sess.requestHeader(target, TypeUnknown, nil)
	header.Set("Accept", "*/*")

	started := time.Now()
	resp, err := sess.fetcher.Fetch(sess.ctx, &network.Request{URL: target, Header: header})
	sess.metrics.ObserveFetch(time.Since(started))
	if err != nil {
		if sess.ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, &FatalFetchError{URL: original.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FatalFetchError{URL: original.String(), Err: err}
	}
	if resp.StatusCode >= 400 {
		a.logger.Warn("Root document returned an error status.", zap.Int("status", resp.StatusCode))
	}
	sess.storeCookies(target, resp.Header)

	page := &rootPage{url: original, body: body, fileType: sniff.Classify(body)}
	if resp.URL != nil {
		page.url = resp.URL
	}
	if page.fileType != sniff.Unknown {
		return page, nil
	}

	reader, err := charset.NewReader(bytes.NewReader(body), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &FatalFetchError{URL: original.String(), Err: fmt.Errorf("%w: %v", ErrUndecodableHTML, err)}
	}
	decoded, err := io.ReadAll(reader)
	if err != nil || !utf8.Valid(decoded) {
		return nil, &FatalFetchError{URL: original.String(), Err: ErrUndecodableHTML}
	}
	page.html = string(decoded)
	return page, nil
}

// finishBinary completes a run whose root body is not HTML. PDF, JPEG and
// PNG payloads are archived verbatim; other formats become the main resource
// of an otherwise empty web archive.
func (a *Archiver) finishBinary(gen uint64, page *rootPage, scratch string) {
	result := &Result{
		URL:         page.url,
		OriginalURL: a.opts.URL,
		Title:       firstNonEmpty(a.opts.Title, "Untitled"),
		Meta:        a.opts.Meta,
		ScratchDir:  scratch,
	}
	if page.fileType.IsDocument() {
		result.Data, result.MIMEType = page.body, page.fileType.MIMEType()
		a.finish(gen, result, nil)
		return
	}

	archive := &webarchive.Archive{MainResource: webarchive.Resource{
		URL:       page.url.String(),
		MIMEType:  page.fileType.MIMEType(),
		Data:      page.body,
		FrameName: webarchive.MainFrameName(),
	}}
	data, err := archive.Encode()
	if err != nil {
		a.finish(gen, nil, err)
		return
	}
	result.Data, result.MIMEType = data, webarchive.MIMEType
	a.finish(gen, result, nil)
}

func subtreeCounts(f *Frame) (total, failed int64) {
	total, failed = f.total.Load(), f.failed.Load()
	for _, child := range f.Children() {
		t, fl := subtreeCounts(child)
		total += t
		failed += fl
	}
	return total, failed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
