// Package execx holds the shared subprocess plumbing: bounded output
// capture and a run helper that surfaces exit codes. Every long-lived or
// install-time child process routes its output through a TailBuffer so a
// failure report can include the lines that actually explain it.
package execx

import (
	"bytes"
	"errors"
	"os/exec"
	"sync"
)

// DefaultTailSize bounds captured subprocess output. Failures are
// diagnosed from the last few KB; everything earlier is noise.
const DefaultTailSize = 8 * 1024

// TailBuffer is an io.Writer that keeps only the last Size bytes written.
// Safe for concurrent writes, so a child's stdout and stderr can share one.
type TailBuffer struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	size int
}

func NewTailBuffer(size int) *TailBuffer {
	if size <= 0 {
		size = DefaultTailSize
	}
	return &TailBuffer{size: size}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.Write(p)
	if t.buf.Len() > t.size {
		excess := t.buf.Len() - t.size
		t.buf.Next(excess)
	}
	return len(p), nil
}

// String returns the captured tail.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// Run executes cmd with stdout and stderr drained into a tail buffer and
// returns the exit code alongside the captured tail. A start failure
// reports exit code -1.
func Run(cmd *exec.Cmd) (exitCode int, tail string, err error) {
	t := NewTailBuffer(DefaultTailSize)
	cmd.Stdout = t
	cmd.Stderr = t

	err = cmd.Run()
	if err == nil {
		return 0, t.String(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), t.String(), err
	}
	return -1, t.String(), err
}
