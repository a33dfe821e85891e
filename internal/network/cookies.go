// File: internal/network/cookies.go
package network

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// NewCookieJar returns a jar seeded with a cookie snapshot. Cookies without a
// domain are scoped to pageURL.
func NewCookieJar(pageURL *url.URL, cookies []*http.Cookie) (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		target := cookieOrigin(pageURL, c)
		if target == nil {
			continue
		}
		jar.SetCookies(target, []*http.Cookie{c})
	}
	return jar, nil
}

func cookieOrigin(pageURL *url.URL, c *http.Cookie) *url.URL {
	host := strings.TrimPrefix(c.Domain, ".")
	if host == "" {
		if pageURL == nil {
			return nil
		}
		host = pageURL.Hostname()
	}
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	return &url.URL{Scheme: scheme, Host: host, Path: path}
}
