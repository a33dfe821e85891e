// File: cmd/webarchiver/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/webarchiver/cmd"
	"github.com/xkilldash9x/webarchiver/internal/observability"
)

const panicLogFile = "webarchiver-panic.log"

var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	// An interrupt cancels the running archive; its callbacks still fire.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(exitCode(cmd.Execute(ctx)))
}

// exitCode maps a command error to the process exit status. An interrupted
// run is not a failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

// handlePanic records a crash to panicLogFile before exiting.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	message := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(message), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", message)
	} else {
		fmt.Fprintf(os.Stderr, "webarchiver crashed. Details logged to %s\n", panicLogFile)
	}
	osExit(2)
}
