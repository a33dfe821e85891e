// File: cmd/root_test.go
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webarchiver/internal/config"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "webarchiver version "+Version)
}

func TestRootCmd_VersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "webarchiver version "+Version+"\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	out, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, out, "webarchiver saves a web page")
	assert.Contains(t, out, "archive")
	assert.Contains(t, out, "inspect")
}

func TestRootCmd_InvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network:\n  timeout: 0s\n"), 0o644))

	_, err := executeCommand(t, "--config", path, "inspect", "missing.webarchive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load or validate config")
	assert.Contains(t, err.Error(), "network.timeout")
}

func TestRootCmd_MissingExplicitConfigFile(t *testing.T) {
	_, err := executeCommand(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "inspect", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize configuration")
}

func TestGetConfigFromContext(t *testing.T) {
	_, err := getConfigFromContext(context.Background())
	assert.Error(t, err)

	cfg := config.NewDefaultConfig()
	got, err := getConfigFromContext(context.WithValue(context.Background(), configKey, cfg))
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}
