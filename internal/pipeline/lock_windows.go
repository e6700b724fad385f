//go:build windows

package pipeline

import (
	"os"
)

// processAlive reports whether a process with the given pid exists. On
// Windows FindProcess opens a handle, which fails for exited processes.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}
