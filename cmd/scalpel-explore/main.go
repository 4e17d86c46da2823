// cmd/scalpel-explore/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/scalpel-explore/cmd"
	"github.com/xkilldash9x/scalpel-explore/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables so tests can observe exits and file writes.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	// SIGINT cancels the context; the engine flushes what it has collected
	// and returns.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		observability.Sync()
		if errors.Is(err, context.Canceled) {
			osExit(130)
			return
		}
		osExit(1)
		return
	}
	observability.Sync()
}

// handlePanic flushes the logs and writes the panic with its stack trace to
// panic.log before exiting.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(2)
		return
	}
	fmt.Fprintf(os.Stderr, "\nscalpel-explore crashed. Details logged to %s\n", panicLogFile)
	osExit(2)
}
