// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webarchiver/internal/observability"
	"github.com/xkilldash9x/webarchiver/internal/urlresolve"
)

// executeCommand runs a fresh command tree with args and returns everything
// it printed.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	t.Cleanup(func() { urlresolve.SetForceHTTPS(false) })
	t.Setenv("WEBARCHIVER_LOGGER_LEVEL", "error")

	rootCmd := NewRootCommand()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func pngBytes(t *testing.T, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, size, size))))
	return buf.Bytes()
}
