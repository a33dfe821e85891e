// internal/urlresolve/resolve.go
package urlresolve

import (
	"net/url"
	"path"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of memoized (base, reference) pairs.
const DefaultCacheSize = 4096

// forceHTTPS is the process-wide scheme upgrade toggle. It only affects
// outbound fetches (see ForFetch), never identity comparison.
var forceHTTPS atomic.Bool

// SetForceHTTPS enables or disables rewriting http URLs to https before fetching.
func SetForceHTTPS(enabled bool) { forceHTTPS.Store(enabled) }

// ForceHTTPS reports the current state of the scheme upgrade toggle.
func ForceHTTPS() bool { return forceHTTPS.Load() }

// ForFetch returns the URL that should actually be requested for u. When the
// force-HTTPS toggle is on, http URLs are upgraded; u itself is never mutated.
func ForFetch(u *url.URL) *url.URL {
	if u == nil || !forceHTTPS.Load() || u.Scheme != "http" {
		return u
	}
	upgraded := *u
	upgraded.Scheme = "https"
	return &upgraded
}

// Resolver expands relative references against a base URL. Results are
// memoized because the same stylesheet and icon references recur across
// every frame of a page.
type Resolver struct {
	cache *lru.Cache[string, string]
}

// New creates a Resolver with an LRU memo of the given size. A size <= 0
// disables memoization.
func New(cacheSize int) *Resolver {
	r := &Resolver{}
	if cacheSize > 0 {
		// lru.New only fails for non-positive sizes.
		r.cache, _ = lru.New[string, string](cacheSize)
	}
	return r
}

var defaultResolver = New(DefaultCacheSize)

// Resolve expands reference against base using the package default Resolver.
func Resolve(reference string, base *url.URL) *url.URL {
	return defaultResolver.Resolve(reference, base)
}

// Resolve applies the expansion rules in order:
//
//	absolute http(s)  -> unchanged
//	//host/path       -> base scheme
//	/path             -> base scheme and host
//	../path           -> one base path segment stripped per "../"
//
// Anything else returns nil and the caller drops the candidate.
func (r *Resolver) Resolve(reference string, base *url.URL) *url.URL {
	ref := strings.Trim(strings.TrimSpace(reference), `'"`)
	if ref == "" {
		return nil
	}

	var key string
	if r != nil && r.cache != nil && base != nil {
		key = base.String() + "\x00" + ref
		if cached, ok := r.cache.Get(key); ok {
			if cached == "" {
				return nil
			}
			u, _ := url.Parse(cached)
			return u
		}
	}

	resolved := expand(ref, base)

	if r != nil && r.cache != nil && base != nil {
		if resolved == nil {
			r.cache.Add(key, "")
		} else {
			r.cache.Add(key, resolved.String())
		}
	}
	return resolved
}

func expand(ref string, base *url.URL) *url.URL {
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return parseHTTP(ref)
	}
	if base == nil || base.Scheme == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(ref, "//"):
		return parseHTTP(base.Scheme + ":" + ref)

	case strings.HasPrefix(ref, "/"):
		if base.Host == "" {
			return nil
		}
		return parseHTTP(base.Scheme + "://" + base.Host + ref)

	case strings.HasPrefix(ref, "../"):
		if base.Host == "" {
			return nil
		}
		basePath := base.Path
		if basePath == "" {
			basePath = "/"
		}
		dir := path.Dir(basePath)
		rest := ref
		for strings.HasPrefix(rest, "../") {
			dir = path.Dir(dir)
			rest = rest[len("../"):]
		}
		if !strings.HasSuffix(dir, "/") {
			dir += "/"
		}
		return parseHTTP(base.Scheme + "://" + base.Host + dir + rest)
	}
	return nil
}

func parseHTTP(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	return u
}

// Identity returns the canonical string used to compare resource URLs. The
// fragment is dropped since it never reaches the server.
func Identity(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.Fragment == "" && u.RawFragment == "" {
		return u.String()
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}
