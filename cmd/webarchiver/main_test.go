// File: cmd/webarchiver/main_test.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 130, exitCode(fmt.Errorf("run: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestHandlePanic(t *testing.T) {
	t.Cleanup(resetMocks)

	var written string
	var code int
	osWriteFile = func(name string, data []byte, perm os.FileMode) error {
		assert.Equal(t, panicLogFile, name)
		written = string(data)
		return nil
	}
	osExit = func(c int) { code = c }

	func() {
		defer handlePanic()
		panic("frame cycle")
	}()

	require.Contains(t, written, "panic: frame cycle")
	assert.Contains(t, written, "goroutine")
	assert.Equal(t, 2, code)
}

func TestHandlePanic_WriteFailure(t *testing.T) {
	t.Cleanup(resetMocks)

	var code int
	osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only filesystem") }
	osExit = func(c int) { code = c }

	func() {
		defer handlePanic()
		panic("boom")
	}()
	assert.Equal(t, 2, code)
}

func TestHandlePanic_NoPanic(t *testing.T) {
	t.Cleanup(resetMocks)

	called := false
	osExit = func(int) { called = true }
	func() {
		defer handlePanic()
	}()
	assert.False(t, called)
}
