package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
)

// newSourceRepo builds a local git repository with the backend/frontend
// layout, serving as the clone origin.
func newSourceRepo(t *testing.T) string {
	dir := t.TempDir()

	r, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("Failed to init source repo: %v", err)
	}

	for _, f := range []string{
		filepath.Join("backend", "requirements.txt"),
		filepath.Join("frontend", "package.json"),
		"README.md",
	} {
		path := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create dirs: %v", err)
		}
		if err := os.WriteFile(path, []byte("x\n"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", f, err)
		}
	}

	w, err := r.Worktree()
	if err != nil {
		t.Fatalf("Failed to open worktree: %v", err)
	}
	if err := w.AddGlob("."); err != nil {
		t.Fatalf("Failed to stage files: %v", err)
	}
	_, err = w.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	return dir
}

func TestCloneAndCloned(t *testing.T) {
	src := newSourceRepo(t)
	dest := filepath.Join(t.TempDir(), "BrainDrive")

	m := NewManager(src)
	assert.False(t, m.Cloned(dest))

	assert.NoError(t, m.Clone(context.Background(), dest))
	assert.True(t, m.Cloned(dest))

	// Both service trees present at the final path.
	assert.NoError(t, validStructure(dest))

	// The staging sibling is gone after promotion.
	_, err := os.Stat(dest + ".staging")
	assert.True(t, os.IsNotExist(err))
}

func TestCloneIsIdempotent(t *testing.T) {
	src := newSourceRepo(t)
	dest := filepath.Join(t.TempDir(), "BrainDrive")

	m := NewManager(src)
	assert.NoError(t, m.Clone(context.Background(), dest))
	assert.NoError(t, m.Clone(context.Background(), dest))
}

// A directory left by an interrupted prior attempt is replaced by the
// fresh clone, not merged into.
func TestCloneReplacesPartialTree(t *testing.T) {
	src := newSourceRepo(t)
	dest := filepath.Join(t.TempDir(), "BrainDrive")

	leftover := filepath.Join(dest, "half-written.tmp")
	os.MkdirAll(dest, 0755)
	os.WriteFile(leftover, []byte("junk"), 0644)

	m := NewManager(src)
	assert.NoError(t, m.Clone(context.Background(), dest))

	_, err := os.Stat(leftover)
	assert.True(t, os.IsNotExist(err))
	assert.True(t, m.Cloned(dest))
}

func TestClonedRejectsWrongStructure(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	assert.NoError(t, err)

	// A git repo without the service trees is not a usable checkout.
	m := NewManager("unused")
	assert.False(t, m.Cloned(dir))
}

func TestCloneBadURL(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "BrainDrive")

	m := NewManager(filepath.Join(t.TempDir(), "no-such-repo"))
	err := m.Clone(context.Background(), dest)
	assert.Error(t, err)

	// Nothing promoted on failure.
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpdateAlreadyUpToDate(t *testing.T) {
	src := newSourceRepo(t)
	dest := filepath.Join(t.TempDir(), "BrainDrive")

	m := NewManager(src)
	assert.NoError(t, m.Clone(context.Background(), dest))
	assert.NoError(t, m.Update(context.Background(), dest))
}
