// File: cmd/inspect_test.go
package cmd

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webarchiver/internal/webarchive"
)

func writeTestArchive(t *testing.T) string {
	t.Helper()

	response, err := webarchive.EncodePlain(webarchive.ResponseMeta{
		URL:        "https://example.com/site.css",
		MIMEType:   "text/css",
		StatusCode: 200,
		Header:     http.Header{"Content-Type": {"text/css"}, "Etag": {`"v1"`}},
	})
	require.NoError(t, err)

	archive := &webarchive.Archive{
		MainResource: webarchive.Resource{
			URL:       "https://example.com/",
			MIMEType:  "text/html",
			Data:      []byte("<html></html>"),
			FrameName: webarchive.MainFrameName(),
		},
		Subresources: []webarchive.Resource{
			{URL: "https://example.com/site.css", MIMEType: "text/css", Data: []byte("p{}"), Response: response},
			{URL: "https://example.com/logo.png", MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		},
		SubframeArchives: []webarchive.Archive{{
			MainResource: webarchive.Resource{URL: "https://ads.example.com/", MIMEType: "text/html", Data: []byte("<p>ad</p>")},
		}},
	}
	data, err := archive.Encode()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "page.webarchive")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestInspectCmd_Text(t *testing.T) {
	out, err := executeCommand(t, "inspect", writeTestArchive(t))
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/ [text/html, 13 bytes]\n"+
		"  - https://example.com/site.css [text/css, 3 bytes 200]\n"+
		"  - https://example.com/logo.png [image/png, 4 bytes]\n"+
		"  https://ads.example.com/ [text/html, 9 bytes]\n", out)
}

func TestInspectCmd_JSON(t *testing.T) {
	out, err := executeCommand(t, "inspect", "--json", writeTestArchive(t))
	require.NoError(t, err)

	var frames []frameSummary
	require.NoError(t, json.Unmarshal([]byte(out), &frames))
	require.Len(t, frames, 2)

	assert.Equal(t, 0, frames[0].Depth)
	require.Len(t, frames[0].Subresources, 2)
	assert.Equal(t, 200, frames[0].Subresources[0].StatusCode)
	assert.Equal(t, 2, frames[0].Subresources[0].Headers)
	assert.Zero(t, frames[0].Subresources[1].StatusCode)

	assert.Equal(t, 1, frames[1].Depth)
	assert.Equal(t, "https://ads.example.com/", frames[1].Main.URL)
	assert.Empty(t, frames[1].Subresources)
}

func TestInspectCmd_Errors(t *testing.T) {
	_, err := executeCommand(t, "inspect", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read archive")

	bad := filepath.Join(t.TempDir(), "bad.webarchive")
	require.NoError(t, os.WriteFile(bad, []byte("not a plist at all"), 0o644))
	_, err = executeCommand(t, "inspect", bad)
	require.Error(t, err)
}
