// Package repo provisions the application source tree.
package repo

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// Manager clones and updates the application repository.
type Manager struct {
	URL    string
	Branch string
}

func NewManager(url string) *Manager {
	return &Manager{URL: url, Branch: "main"}
}

// Cloned reports whether dir already holds a usable checkout.
func (m *Manager) Cloned(dir string) bool {
	if _, err := git.PlainOpen(dir); err != nil {
		return false
	}
	return validStructure(dir) == nil
}

// Clone fetches the repository into dir. The clone lands in a staging
// sibling first and is promoted only after structural validation, so an
// interrupted clone never leaves a half-populated tree at the final path.
func (m *Manager) Clone(ctx context.Context, dir string) error {
	if m.Cloned(dir) {
		log.Printf("Repository already present at %s", dir)
		return nil
	}

	staging := dir + ".staging"
	os.RemoveAll(staging)
	defer os.RemoveAll(staging)

	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return err
	}

	log.Printf("Cloning %s -> %s", m.URL, staging)
	_, err := git.PlainCloneContext(ctx, staging, false, &git.CloneOptions{
		URL: m.URL,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", m.URL, err)
	}

	if err := validStructure(staging); err != nil {
		return fmt.Errorf("clone of %s looks wrong: %w", m.URL, err)
	}

	// Anything at the final path at this point is a prior partial tree.
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.Rename(staging, dir); err != nil {
		return fmt.Errorf("failed to promote staged clone: %w", err)
	}

	log.Printf("Repository ready at %s", dir)
	return nil
}

// Update pulls the latest changes into an existing checkout.
func (m *Manager) Update(ctx context.Context, dir string) error {
	r, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("repository not found at %s: %w", dir, err)
	}

	w, err := r.Worktree()
	if err != nil {
		return err
	}

	err = w.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
	if err == git.NoErrAlreadyUpToDate {
		log.Printf("Repository at %s already up to date", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update repository: %w", err)
	}

	log.Printf("Repository at %s updated", dir)
	return nil
}

// validStructure confirms the checkout has the two service trees the rest
// of the pipeline operates on.
func validStructure(dir string) error {
	for _, sub := range []string{"backend", "frontend"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			return fmt.Errorf("missing %s directory", sub)
		}
	}
	return nil
}
