// internal/archiver/frame.go
package archiver

import (
	"bytes"
	"image"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"

	// Registered for thumbnail validation.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/biessek/golang-ico"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/xkilldash9x/webarchiver/internal/document"
	"github.com/xkilldash9x/webarchiver/internal/urlresolve"
)

type frameState int

const (
	stateCreated frameState = iota
	stateDiscovering
	stateDownloading
	stateComplete
)

// Frame is one document of the page tree: the main page or an iframe. All
// mutation of its resource sets happens under mu; actions that may re-enter
// a frame (starting downloads, child frames, completion callbacks) run only
// after mu is released.
type Frame struct {
	sess   *session
	parent *Frame
	url    *url.URL
	html   string
	doc    document.Document
	// supplied holds URLs enumerated out of band, keyed by type.
	supplied map[ResourceType][]string
	logger   *zap.Logger

	mu               sync.Mutex
	state            frameState
	known            map[resourceKey]*Resource
	knownURLs        map[string]bool
	pending          map[resourceKey]*Resource
	completed        []*Resource
	pendingSubframes map[*Frame]struct{}
	onComplete       func(*Frame)
	title            string
	meta             Meta
	thumbnail        []byte
	thumbnailMIME    string
	thumbnailPrimary bool

	childMu  sync.RWMutex
	children []*Frame

	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

func newFrame(sess *session, parent *Frame, u *url.URL, html string, supplied map[ResourceType][]string) *Frame {
	f := &Frame{
		sess:             sess,
		parent:           parent,
		url:              u,
		html:             html,
		supplied:         supplied,
		logger:           sess.logger.Named("frame").With(zap.String("frame_url", u.String())),
		known:            make(map[resourceKey]*Resource),
		knownURLs:        make(map[string]bool),
		pending:          make(map[resourceKey]*Resource),
		pendingSubframes: make(map[*Frame]struct{}),
	}

	if html != "" {
		doc, err := sess.parser.Parse(html)
		if err != nil {
			f.logger.Warn("Could not parse frame document, archiving it without subresources.", zap.Error(err))
		} else {
			f.doc = doc
		}
	}
	return f
}

// URL is the frame's document URL.
func (f *Frame) URL() *url.URL { return f.url }

// Title is the derived document title.
func (f *Frame) Title() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title
}

// Children returns the frame's child frames in creation order.
func (f *Frame) Children() []*Frame {
	f.childMu.RLock()
	defer f.childMu.RUnlock()
	return append([]*Frame(nil), f.children...)
}

// Counts returns this frame's own total, succeeded and failed resource counts.
func (f *Frame) Counts() (total, succeeded, failed int64) {
	return f.total.Load(), f.succeeded.Load(), f.failed.Load()
}

// aggregate sums finished and total resource counts over the subtree.
func (f *Frame) aggregate() (done, total int64) {
	done = f.succeeded.Load() + f.failed.Load()
	total = f.total.Load()
	for _, child := range f.Children() {
		d, t := child.aggregate()
		done += d
		total += t
	}
	return done, total
}

func (f *Frame) root() *Frame {
	r := f
	for r.parent != nil {
		r = r.parent
	}
	return r
}

func (f *Frame) reportProgress() {
	done, total := f.root().aggregate()
	f.sess.progress.report(done, total)
}

// discovery is the work found by discover, run by launch once no frame lock
// is held.
type discovery struct {
	starts []*Resource
	done   func()
}

// start runs discovery and begins downloading. onComplete is invoked exactly
// once, after both pending sets are empty.
func (f *Frame) start(onComplete func(*Frame)) {
	f.launch(f.discover(onComplete))
}

// discover registers every resource of the document without starting any,
// so the frame's totals are counted before anything reports progress. It
// returns nil if the frame was already started or the session is cancelled.
func (f *Frame) discover(onComplete func(*Frame)) *discovery {
	if f.sess.isCancelled() {
		return nil
	}

	f.mu.Lock()
	if f.state != stateCreated {
		f.mu.Unlock()
		return nil
	}
	f.onComplete = onComplete
	f.state = stateDiscovering

	base := documentBase(f.doc, f.url)
	var starts []*Resource
	enqueue := func(urls []*url.URL, t ResourceType, primary bool) {
		for _, u := range urls {
			if r := f.enqueueLocked(u, t, primary); r != nil {
				starts = append(starts, r)
			}
		}
	}

	for _, t := range discoveryOrder {
		enqueue(extractResources(f.doc, t, f.supplied[t], base, f.sess.resolver), t, false)
	}
	enqueue(extractInlineBackgrounds(f.doc, base), TypeImage, false)
	if f.parent == nil {
		if thumb, primary := extractThumbnail(f.doc, base); thumb != nil {
			enqueue([]*url.URL{thumb}, TypeThumbnail, primary)
		}
	}

	f.title = extractTitle(f.doc)
	f.meta = extractMeta(f.doc)
	f.state = stateDownloading
	f.logger.Debug("Frame discovery finished.", zap.Int("resources", len(starts)))

	done := f.checkCompleteLocked()
	f.mu.Unlock()
	return &discovery{starts: starts, done: done}
}

// launch starts the downloads found by discover.
func (f *Frame) launch(d *discovery) {
	if d == nil {
		return
	}
	f.sess.metrics.IncFrames()
	for _, r := range d.starts {
		r.start()
	}
	if d.done != nil {
		f.reportProgress()
		d.done()
	}
}

// enqueueLocked registers a new resource unless it is a data URL, a
// self-reference of a frame or link, or already known under the same
// identity. Second-order (unknown typed) URLs are skipped if known under any
// type. It returns the new resource, which the caller must start after
// releasing mu.
func (f *Frame) enqueueLocked(u *url.URL, t ResourceType, primary bool) *Resource {
	if u == nil || u.Scheme == "data" {
		return nil
	}
	id := urlresolve.Identity(u)
	if (t == TypeFrame || t == TypeLink) && id == urlresolve.Identity(f.url) {
		return nil
	}
	if t == TypeUnknown && f.knownURLs[id] {
		return nil
	}
	key := resourceKey{url: id, class: t.class()}
	if _, ok := f.known[key]; ok {
		return nil
	}

	r := newResource(f, u, t, primary)
	f.known[key] = r
	f.knownURLs[id] = true
	f.pending[key] = r
	f.total.Add(1)
	return r
}

// resourceFinished is called exactly once per resource from its download
// goroutine.
func (f *Frame) resourceFinished(r *Resource) {
	if f.sess.isCancelled() {
		return
	}

	// Reading bodies happens before taking the lock.
	var (
		child         *Frame
		childWork     *discovery
		imports       []*url.URL
		thumbnail     []byte
		thumbnailMIME string
	)
	if r.Succeeded() {
		switch r.Type {
		case TypeFrame:
			data, err := r.Data()
			if err == nil && len(data) > 0 && !f.hasAncestorURL(r.URL) {
				childURL := r.URL
				if r.finalURL != nil {
					childURL = r.finalURL
				}
				child = newFrame(f.sess, f, childURL, string(data), nil)
				// The child's resources must be counted before it is
				// attached, or the tree briefly looks finished.
				childWork = child.discover(f.subframeFinished)
			}
		case TypeThumbnail:
			if data, err := r.Data(); err == nil {
				if mimeType, ok := decodableImageMIME(data); ok {
					thumbnail = data
					thumbnailMIME = mimeType
					if thumbnailMIME == "" {
						thumbnailMIME = r.mimeType
					}
				}
			}
			if thumbnail == nil {
				f.logger.Debug("Discarding thumbnail that is not an image.", zap.String("url", r.URL.String()))
			}
		default:
			imports = r.extractImportedURLs()
		}
	}

	f.mu.Lock()
	key := r.key()
	if f.state != stateDownloading || f.pending[key] != r {
		f.mu.Unlock()
		return
	}
	delete(f.pending, key)
	if r.Succeeded() {
		f.succeeded.Add(1)
	} else {
		f.failed.Add(1)
	}

	var starts []*Resource
	switch r.Type {
	case TypeFrame:
		if child != nil {
			f.pendingSubframes[child] = struct{}{}
			f.childMu.Lock()
			f.children = append(f.children, child)
			f.childMu.Unlock()
		}
	case TypeThumbnail:
		if thumbnail != nil && (f.thumbnail == nil || r.primary) {
			f.thumbnail = thumbnail
			f.thumbnailMIME = thumbnailMIME
			f.thumbnailPrimary = r.primary
		}
	default:
		for _, u := range imports {
			if nr := f.enqueueLocked(u, TypeUnknown, false); nr != nil {
				starts = append(starts, nr)
			}
		}
		f.completed = append(f.completed, r)
	}

	done := f.checkCompleteLocked()
	f.mu.Unlock()

	f.reportProgress()
	for _, nr := range starts {
		nr.start()
	}
	if child != nil {
		child.launch(childWork)
	}
	if done != nil {
		done()
	}
}

// subframeFinished is the completion callback of every child frame.
func (f *Frame) subframeFinished(child *Frame) {
	if f.sess.isCancelled() {
		return
	}

	f.mu.Lock()
	if _, ok := f.pendingSubframes[child]; !ok || f.state != stateDownloading {
		f.mu.Unlock()
		return
	}
	delete(f.pendingSubframes, child)
	done := f.checkCompleteLocked()
	f.mu.Unlock()

	f.reportProgress()
	if done != nil {
		done()
	}
}

// checkCompleteLocked returns the completion action when both pending sets
// are empty, clearing the callback so it can fire only once.
func (f *Frame) checkCompleteLocked() func() {
	if f.state != stateDownloading || len(f.pending) > 0 || len(f.pendingSubframes) > 0 || f.onComplete == nil {
		return nil
	}
	cb := f.onComplete
	f.onComplete = nil
	f.state = stateComplete
	f.logger.Debug("Frame complete.",
		zap.Int64("succeeded", f.succeeded.Load()),
		zap.Int64("failed", f.failed.Load()))
	return func() { cb(f) }
}

// hasAncestorURL reports whether u is this frame's document or one of its
// ancestors', which would make a child frame recurse forever.
func (f *Frame) hasAncestorURL(u *url.URL) bool {
	id := urlresolve.Identity(u)
	for a := f; a != nil; a = a.parent {
		if urlresolve.Identity(a.url) == id {
			return true
		}
	}
	return false
}

// completedResources returns the completed set ordered by discovery. Only
// valid once the frame is complete.
func (f *Frame) completedResources() []*Resource {
	f.mu.Lock()
	out := append([]*Resource(nil), f.completed...)
	f.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

var imageFormatMIME = map[string]string{
	"gif":  "image/gif",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"bmp":  "image/bmp",
	"webp": "image/webp",
	"ico":  "image/x-icon",
}

// decodableImageMIME reports whether data is an image one of the registered
// decoders understands, and the media type of its format. The type is empty
// for a format without a known media type.
func decodableImageMIME(data []byte) (string, bool) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", false
	}
	return imageFormatMIME[format], true
}
