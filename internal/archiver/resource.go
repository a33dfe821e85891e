// internal/archiver/resource.go
package archiver

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webarchiver/internal/network"
	"github.com/xkilldash9x/webarchiver/internal/urlresolve"
)

type outcome int

const (
	outcomePending outcome = iota
	outcomeSucceeded
	outcomeFailed
)

// Resource is one downloadable unit of a frame. Its fields are written only
// by its download goroutine before the owning frame is notified, and are
// read-only afterwards.
type Resource struct {
	seq     uint64
	URL     *url.URL
	Type    ResourceType
	primary bool
	frame   *Frame

	outcome     outcome
	mimeType    string
	storagePath string
	size        int64
	finalURL    *url.URL
	status      int
	header      http.Header
	err         error
}

func newResource(f *Frame, u *url.URL, t ResourceType, primary bool) *Resource {
	return &Resource{
		seq:      f.sess.nextSeq(),
		URL:      u,
		Type:     t,
		primary:  primary,
		frame:    f,
		mimeType: t.DefaultMIMEType(),
	}
}

func (r *Resource) key() resourceKey {
	return resourceKey{url: urlresolve.Identity(r.URL), class: r.Type.class()}
}

// Succeeded reports whether the body was downloaded and stored.
func (r *Resource) Succeeded() bool { return r.outcome == outcomeSucceeded }

// Err is the download error of a failed resource.
func (r *Resource) Err() error { return r.err }

// MIMEType is the response's declared type, or the type's default.
func (r *Resource) MIMEType() string { return r.mimeType }

// Data reads the stored body. It returns nil for resources without one.
func (r *Resource) Data() ([]byte, error) {
	if r.storagePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(r.storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored body of %s: %w", r.URL, err)
	}
	return data, nil
}

// start downloads the resource on its own goroutine and notifies the owning
// frame exactly once, whatever the outcome.
func (r *Resource) start() {
	go func() {
		defer r.frame.resourceFinished(r)
		r.download()
	}()
}

func (r *Resource) download() {
	sess := r.frame.sess
	logger := r.frame.logger.With(zap.String("url", r.URL.String()), zap.Stringer("type", r.Type))

	target := urlresolve.ForFetch(r.URL)
	started := time.Now()
	resp, err := sess.fetcher.Fetch(sess.ctx, &network.Request{
		URL:    target,
		Header: sess.requestHeader(target, r.Type, r.frame.url),
	})
	sess.metrics.ObserveFetch(time.Since(started))
	if err != nil {
		r.fail(&ResourceDownloadError{URL: r.URL.String(), Err: err}, logger)
		return
	}
	defer resp.Body.Close()

	r.status = resp.StatusCode
	if resp.StatusCode >= 400 {
		r.fail(&ResourceDownloadError{URL: r.URL.String(), StatusCode: resp.StatusCode}, logger)
		return
	}

	storagePath, size, err := r.persist(sess.scratchDir, resp.Body)
	if err != nil {
		r.fail(&ResourceDownloadError{URL: r.URL.String(), StatusCode: resp.StatusCode, Err: err}, logger)
		return
	}

	r.storagePath = storagePath
	r.size = size
	r.header = resp.Header
	r.finalURL = resp.URL
	if resp.MIMEType != "" {
		r.mimeType = resp.MIMEType
	}
	r.outcome = outcomeSucceeded
	sess.storeCookies(target, resp.Header)
	sess.metrics.ObserveResource(r.Type, nil, size)
	logger.Debug("Resource downloaded.", zap.Int("status", resp.StatusCode), zap.Int64("bytes", size))
}

func (r *Resource) fail(err error, logger *zap.Logger) {
	r.outcome = outcomeFailed
	r.err = err
	r.frame.sess.metrics.ObserveResource(r.Type, err, 0)
	logger.Warn("Resource download failed.", zap.Int("status", r.status), zap.Error(err))
}

// persist writes body to a new file in dir.
func (r *Resource) persist(dir string, body io.Reader) (string, int64, error) {
	name := filepath.Join(dir, uuid.NewString()+scratchExtension(r.URL))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create scratch file: %w", err)
	}
	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(name)
		return "", 0, fmt.Errorf("failed to store body: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(name)
		return "", 0, fmt.Errorf("failed to store body: %w", closeErr)
	}
	return name, n, nil
}

func scratchExtension(u *url.URL) string {
	ext := path.Ext(u.Path)
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, c := range ext[1:] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return ""
		}
	}
	return ext
}

var (
	// cssURLPattern matches url(...) and the bare-string form of @import.
	cssURLPattern  = regexp.MustCompile(`(?i)url\(([^)]*)\)|@import\s+(?:"([^"]*)"|'([^']*)')`)
	linkTagPattern = regexp.MustCompile(`(?is)<link\b[^>]*>`)
	attrPattern    = regexp.MustCompile(`(?is)[\s/](rel|href)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`)
)

// importedLinkRels are the <link> relations followed inside downloaded HTML.
var importedLinkRels = map[string]bool{
	"shortcut icon": true,
	"stylesheet":    true,
	"manifest":      true,
	"script":        true,
}

// extractImportedURLs scans a downloaded stylesheet for url(...) and @import
// references or downloaded HTML for followed <link> hrefs. References are resolved
// against the resource's own URL and deduplicated in discovery order.
func (r *Resource) extractImportedURLs() []*url.URL {
	if !r.Succeeded() {
		return nil
	}
	mime := strings.ToLower(r.mimeType)
	isCSS := strings.Contains(mime, "css")
	isHTML := strings.Contains(mime, "html")
	if !isCSS && !isHTML {
		return nil
	}

	data, err := r.Data()
	if err != nil {
		r.frame.logger.Warn("Could not rescan resource.", zap.String("url", r.URL.String()), zap.Error(err))
		return nil
	}
	text := string(data)

	var refs []string
	if isCSS {
		for _, m := range cssURLPattern.FindAllStringSubmatch(text, -1) {
			refs = append(refs, m[1]+m[2]+m[3])
		}
	}
	if isHTML {
		for _, tag := range linkTagPattern.FindAllString(text, -1) {
			var rel, href string
			var hasHref bool
			for _, m := range attrPattern.FindAllStringSubmatch(tag, -1) {
				value := m[2] + m[3] + m[4]
				switch strings.ToLower(m[1]) {
				case "rel":
					rel = strings.ToLower(strings.Join(strings.Fields(value), " "))
				case "href":
					href, hasHref = value, true
				}
			}
			if hasHref && importedLinkRels[rel] {
				refs = append(refs, href)
			}
		}
	}

	seen := make(map[string]bool, len(refs))
	var out []*url.URL
	for _, ref := range refs {
		if decoded, err := url.PathUnescape(ref); err == nil {
			ref = decoded
		}
		u := r.frame.sess.resolver.Resolve(ref, r.URL)
		if u == nil {
			continue
		}
		id := urlresolve.Identity(u)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, u)
	}
	return out
}
