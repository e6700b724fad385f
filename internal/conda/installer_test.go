package conda

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"braindrived/internal/platform"

	"github.com/stretchr/testify/assert"
)

var linuxDesc = platform.Descriptor{OS: platform.Linux, Arch: platform.AMD64}

// newTestInstaller wires an installer against temp dirs with the artifact
// pre-cached, so Provision never touches the network.
func newTestInstaller(t *testing.T) *Installer {
	base := t.TempDir()
	i := NewInstaller(linuxDesc, filepath.Join(base, "runtime"), filepath.Join(base, "cache"), nil)

	artifact := platform.RuntimeArtifactFor(linuxDesc)
	if err := os.MkdirAll(i.CacheDir, 0755); err != nil {
		t.Fatalf("Failed to create cache dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(i.CacheDir, artifact.Filename), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("Failed to seed cached artifact: %v", err)
	}
	return i
}

// markInstalled fabricates a complete runtime at the prefix.
func markInstalled(t *testing.T, i *Installer) {
	exe := platform.CondaExe(i.Desc, i.Prefix)
	if err := os.MkdirAll(filepath.Dir(exe), 0755); err != nil {
		t.Fatalf("Failed to create runtime dirs: %v", err)
	}
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("Failed to write conda exe: %v", err)
	}
	if err := os.WriteFile(filepath.Join(i.Prefix, markerName), []byte("ok\n"), 0644); err != nil {
		t.Fatalf("Failed to write marker: %v", err)
	}
}

func TestInstalledRequiresMarkerAndExe(t *testing.T) {
	i := newTestInstaller(t)
	assert.False(t, i.Installed())

	// Marker without the executable is not an install.
	os.MkdirAll(i.Prefix, 0755)
	os.WriteFile(filepath.Join(i.Prefix, markerName), []byte("ok\n"), 0644)
	assert.False(t, i.Installed())

	markInstalled(t, i)
	assert.True(t, i.Installed())
}

func TestProvisionRunsInstaller(t *testing.T) {
	i := newTestInstaller(t)

	var ran [][]string
	i.run = func(cmd *exec.Cmd) (int, string, error) {
		ran = append(ran, cmd.Args)
		markInstalled(t, i) // the vendor installer populates the prefix
		return 0, "", nil
	}

	assert.NoError(t, i.Provision(context.Background()))
	assert.Len(t, ran, 1)
	assert.Equal(t, "bash", ran[0][0])
	assert.Contains(t, ran[0], "-b")
	assert.Contains(t, ran[0], i.Prefix)
	assert.True(t, i.Installed())
}

// A second Provision against a verified runtime must be a pure no-op.
func TestProvisionIdempotent(t *testing.T) {
	i := newTestInstaller(t)
	markInstalled(t, i)

	i.run = func(cmd *exec.Cmd) (int, string, error) {
		t.Fatal("installer must not run for a provisioned runtime")
		return 0, "", nil
	}
	assert.NoError(t, i.Provision(context.Background()))
}

// A prefix without the completion marker is a trusted-nothing leftover:
// Provision must remove it before reinstalling, because the vendor
// installer refuses an existing target directory.
func TestProvisionClearsIncompleteRuntime(t *testing.T) {
	i := newTestInstaller(t)

	stale := filepath.Join(i.Prefix, "half-written")
	os.MkdirAll(i.Prefix, 0755)
	os.WriteFile(stale, []byte("junk"), 0644)

	i.run = func(cmd *exec.Cmd) (int, string, error) {
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Error("stale runtime not cleared before install")
		}
		markInstalled(t, i)
		return 0, "", nil
	}

	assert.NoError(t, i.Provision(context.Background()))
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestProvisionInstallerFailure(t *testing.T) {
	i := newTestInstaller(t)

	i.run = func(cmd *exec.Cmd) (int, string, error) {
		return 2, "No space left on device", assert.AnError
	}

	err := i.Provision(context.Background())
	assert.Error(t, err)

	var pe *ProvisionError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "install", pe.Step)
	assert.Equal(t, 2, pe.ExitCode)
	assert.Contains(t, err.Error(), "No space left on device")
	assert.False(t, i.Installed())
}

// An installer that exits 0 without producing the conda executable is a
// verification failure, and no marker may be written.
func TestProvisionVerifyFailure(t *testing.T) {
	i := newTestInstaller(t)

	i.run = func(cmd *exec.Cmd) (int, string, error) {
		return 0, "", nil
	}

	err := i.Provision(context.Background())
	var pe *ProvisionError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "verify", pe.Step)

	_, statErr := os.Stat(filepath.Join(i.Prefix, markerName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestProvisionCancelled(t *testing.T) {
	i := newTestInstaller(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	i.run = func(cmd *exec.Cmd) (int, string, error) {
		t.Fatal("installer must not run after cancellation")
		return 0, "", nil
	}

	err := i.Provision(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
