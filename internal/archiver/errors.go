// internal/archiver/errors.go
package archiver

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCancelled is delivered to every pending callback when an archive is cancelled.
	ErrCancelled = errors.New("archive cancelled")
	// ErrUndecodableHTML means the root document could not be decoded to UTF-8 text.
	ErrUndecodableHTML = errors.New("root document is not decodable text")
)

// FatalFetchError aborts an archive: the root document could not be fetched
// or decoded.
type FatalFetchError struct {
	URL string
	Err error
}

func (e *FatalFetchError) Error() string {
	return fmt.Sprintf("fetching root document %s: %v", e.URL, e.Err)
}

func (e *FatalFetchError) Unwrap() error {
	return e.Err
}

// ResourceDownloadError is recorded on a single resource and never reaches
// archive callbacks. StatusCode is zero when no response was received.
type ResourceDownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ResourceDownloadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *ResourceDownloadError) Unwrap() error {
	return e.Err
}

// outcomeLabel maps a resource error to a metrics label.
func outcomeLabel(err error) string {
	if err == nil {
		return "succeeded"
	}
	var dl *ResourceDownloadError
	if errors.As(err, &dl) && dl.StatusCode >= 400 {
		if dl.StatusCode >= 500 {
			return "server_error"
		}
		return "client_error"
	}
	return "failed"
}
