package pipeline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrLocked means another installation run holds the install directory.
var ErrLocked = fmt.Errorf("another installation is already in progress")

// fileLock is the advisory lock guarding the install directory for the
// pipeline's whole duration. Concurrent runs against the same path are
// not supported; the second one fails fast instead of corrupting state.
// A lock whose recorded owner is no longer alive is a leftover from a
// crashed run and is reclaimed.
type fileLock struct {
	path string
}

func acquireLock(path string) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if os.IsExist(err) {
		if pid, ok := lockOwner(path); ok && processAlive(pid) {
			return nil, fmt.Errorf("%w (held by pid %d, lock file: %s)", ErrLocked, pid, path)
		}
		log.Printf("Reclaiming stale lock %s", path)
		os.Remove(path)
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if os.IsExist(err) {
			// Someone else won the reclaim race.
			return nil, fmt.Errorf("%w (lock file: %s)", ErrLocked, path)
		}
	}
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return &fileLock{path: path}, nil
}

// lockOwner reads the pid recorded in the lock file. An unreadable or
// malformed file counts as ownerless; our own writer always records one.
func lockOwner(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (l *fileLock) release() {
	os.Remove(l.path)
}
