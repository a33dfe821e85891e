// File: internal/network/compression.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is advertised on every request that does not set its own.
const AcceptEncoding = "br, gzip, deflate"

var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaderPool = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
	emptyReader = strings.NewReader("")
)

// CompressionMiddleware is an http.RoundTripper that negotiates compression
// and hands callers a decoded body. Archived bodies must be the decoded
// bytes, so Content-Encoding is stripped from the returned headers.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport, defaulting to http.DefaultTransport.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := DecompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// DecompressResponse wraps resp.Body with decoders for every layer listed in
// Content-Encoding, last applied first. On success the encoding and length
// headers are removed. On error the body may be partially consumed.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	// A single header may also carry a comma separated list.
	var layers []string
	for _, v := range encodings {
		for _, part := range strings.Split(v, ",") {
			layers = append(layers, strings.ToLower(strings.TrimSpace(part)))
		}
	}

	for i := len(layers) - 1; i >= 0; i-- {
		var (
			reader  io.ReadCloser
			release func()
		)

		switch layers[i] {
		case "gzip", "x-gzip":
			zr := gzipReaderPool.Get().(*gzip.Reader)
			if err := zr.Reset(resp.Body); err != nil {
				gzipReaderPool.Put(zr)
				return fmt.Errorf("gzip initialization error: %w", err)
			}
			reader = zr
			release = func() {
				_ = zr.Reset(emptyReader)
				gzipReaderPool.Put(zr)
			}

		case "deflate":
			reader = openDeflate(resp.Body)

		case "br":
			br := brotliReaderPool.Get().(*brotli.Reader)
			if err := br.Reset(resp.Body); err != nil {
				brotliReaderPool.Put(br)
				return fmt.Errorf("brotli initialization error: %w", err)
			}
			reader = io.NopCloser(br)
			release = func() {
				_ = br.Reset(emptyReader)
				brotliReaderPool.Put(br)
			}

		case "identity", "":
			continue

		default:
			return fmt.Errorf("unsupported Content-Encoding layer: %s", layers[i])
		}

		resp.Body = &decodedBody{ReadCloser: reader, source: resp.Body, release: release}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// decodedBody closes both the decoder and the body it reads from, and returns
// pooled decoders on first Close.
type decodedBody struct {
	io.ReadCloser
	source  io.ReadCloser
	release func()
}

func (b *decodedBody) Close() error {
	err := b.ReadCloser.Close()
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return errors.Join(err, b.source.Close())
}

// openDeflate decodes zlib-wrapped deflate, falling back to a raw stream when
// the zlib header is absent. Servers send both under the same token.
func openDeflate(r io.Reader) io.ReadCloser {
	var head bytes.Buffer
	if zr, err := zlib.NewReader(io.TeeReader(r, &head)); err == nil {
		return zr
	}
	return flate.NewReader(io.MultiReader(&head, r))
}
