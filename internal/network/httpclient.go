// File: internal/network/httpclient.go
package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/xkilldash9x/webarchiver/internal/observability"
)

// Constants for default TCP/HTTP settings.
const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultKeepAliveInterval     = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultRequestTimeout        = 60 * time.Second

	// A single page rarely pulls from more than a handful of hosts, but a
	// CDN host can serve dozens of subresources at once.
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 16
	DefaultMaxConnsPerHost     = 32
	DefaultIdleConnTimeout     = 90 * time.Second

	// DefaultMaxRedirects matches the limit net/http applies by default.
	DefaultMaxRedirects = 10
)

// ClientConfig holds the configuration for the HTTP client and transport layers.
type ClientConfig struct {
	IgnoreTLSErrors bool
	TLSConfig       *tls.Config

	RequestTimeout        time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	DialerConfig *DialerConfig

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	MaxRedirects        int

	ForceHTTP2 bool

	ProxyURL *url.URL

	// Jar, when set, is consulted and updated on every request. Private
	// sessions leave it nil.
	Jar http.CookieJar

	Logger *zap.Logger
}

// NewDefaultClientConfig creates a configuration suitable for fetching page resources.
func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		DialerConfig:          NewDialerConfig(),
		RequestTimeout:        DefaultRequestTimeout,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		MaxConnsPerHost:       DefaultMaxConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		MaxRedirects:          DefaultMaxRedirects,
		ForceHTTP2:            true,
		Logger:                observability.GetLogger().Named("httpclient"),
	}
}

// NewHTTPTransport creates and configures an http.Transport based on the provided configuration.
func NewHTTPTransport(config *ClientConfig) *http.Transport {
	if config == nil {
		config = NewDefaultClientConfig()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.DialerConfig == nil {
		config.DialerConfig = NewDialerConfig()
	}

	tlsConfig := configureTLS(config)
	dialerConfig := *config.DialerConfig

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return DialTCPContext(ctx, network, addr, &dialerConfig)
		},
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		// Decompression is handled by CompressionMiddleware so brotli is covered too.
		DisableCompression: true,
		ForceAttemptHTTP2:  config.ForceHTTP2,
	}

	if config.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(config.ProxyURL)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	if config.ForceHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			config.Logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
		}
	} else if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{"http/1.1"}
	}

	return transport
}

// NewClient creates an http.Client whose transport negotiates compression and
// follows redirects up to config.MaxRedirects.
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = NewDefaultClientConfig()
	}

	maxRedirects := config.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}

	return &http.Client{
		Transport: NewCompressionMiddleware(NewHTTPTransport(config)),
		Timeout:   config.RequestTimeout,
		Jar:       config.Jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects: %w", maxRedirects, errTooManyRedirects)
			}
			return nil
		},
	}
}

var errTooManyRedirects = errors.New("too many redirects")

// configureTLS sets up the TLS configuration with strong defaults.
func configureTLS(config *ClientConfig) *tls.Config {
	var tlsConfig *tls.Config
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ClientSessionCache: tls.NewLRUClientSessionCache(512),
		}
	}
	tlsConfig.InsecureSkipVerify = config.IgnoreTLSErrors
	return tlsConfig
}
