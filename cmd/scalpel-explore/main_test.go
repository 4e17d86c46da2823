// cmd/scalpel-explore/main_test.go
package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOS swaps the file and exit hooks for the duration of a test.
func stubOS(t *testing.T, writeErr error) (written *[]byte, exitCode *int) {
	t.Helper()
	origWrite, origExit := osWriteFile, osExit
	t.Cleanup(func() {
		osWriteFile, osExit = origWrite, origExit
	})

	var data []byte
	code := -1
	osWriteFile = func(name string, b []byte, perm os.FileMode) error {
		if writeErr != nil {
			return writeErr
		}
		assert.Equal(t, panicLogFile, name)
		data = b
		return nil
	}
	osExit = func(c int) { code = c }
	return &data, &code
}

func TestHandlePanic(t *testing.T) {
	t.Run("writes the panic and stack to panic.log", func(t *testing.T) {
		written, code := stubOS(t, nil)

		func() {
			defer handlePanic()
			panic("frontier exploded")
		}()

		require.NotEmpty(t, *written)
		assert.Contains(t, string(*written), "panic: frontier exploded")
		assert.Contains(t, string(*written), "goroutine", "the stack trace is included")
		assert.Equal(t, 2, *code)
	})

	t.Run("still exits when the log cannot be written", func(t *testing.T) {
		_, code := stubOS(t, errors.New("read-only filesystem"))

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Equal(t, 2, *code)
	})

	t.Run("does nothing without a panic", func(t *testing.T) {
		written, code := stubOS(t, nil)

		func() {
			defer handlePanic()
		}()

		assert.Empty(t, *written)
		assert.Equal(t, -1, *code)
	})
}
