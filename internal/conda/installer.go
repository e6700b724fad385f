package conda

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"braindrived/internal/download"
	"braindrived/internal/execx"
	"braindrived/internal/platform"
)

// markerName is written inside the runtime prefix once an install has been
// verified. Its absence from an existing prefix means a prior attempt was
// interrupted, and the directory cannot be trusted.
const markerName = ".runtime-complete"

// Installer provisions the managed Miniconda runtime at a fixed prefix.
type Installer struct {
	Desc     platform.Descriptor
	Prefix   string
	CacheDir string
	Client   *download.Client

	// SHA256 optionally pins the installer artifact digest.
	SHA256 string

	// ArchiveURL, when set, switches provisioning to extracting a .7z
	// runtime bundle instead of running the vendor installer. Used for
	// offline installs shipping the runtime beside the application.
	ArchiveURL string

	// run executes installer subprocesses; replaced in tests.
	run func(cmd *exec.Cmd) (int, string, error)
}

func NewInstaller(desc platform.Descriptor, prefix, cacheDir string, client *download.Client) *Installer {
	return &Installer{
		Desc:     desc,
		Prefix:   prefix,
		CacheDir: cacheDir,
		Client:   client,
		run:      execx.Run,
	}
}

// Installed reports whether the prefix holds a complete runtime: the
// completion marker plus the conda executable itself.
func (i *Installer) Installed() bool {
	if _, err := os.Stat(filepath.Join(i.Prefix, markerName)); err != nil {
		return false
	}
	_, err := os.Stat(platform.CondaExe(i.Desc, i.Prefix))
	return err == nil
}

// CondaExe returns the conda executable path for this runtime.
func (i *Installer) CondaExe() string {
	return platform.CondaExe(i.Desc, i.Prefix)
}

// Provision ensures the runtime exists at the prefix. Idempotent: a
// verified install returns immediately; an unverifiable partial one is
// deleted and redone, since the vendor installer refuses a pre-existing
// target directory. Provision attempts each step once; retry policy
// belongs to the caller.
func (i *Installer) Provision(ctx context.Context) error {
	if i.Installed() {
		log.Printf("Runtime already provisioned at %s", i.Prefix)
		return nil
	}

	if _, err := os.Stat(i.Prefix); err == nil {
		log.Printf("Removing incomplete runtime at %s", i.Prefix)
		if err := os.RemoveAll(i.Prefix); err != nil {
			return &ProvisionError{Step: "install", Err: fmt.Errorf("failed to clear stale runtime: %w", err)}
		}
	}

	artifact, err := i.fetchArtifact(ctx)
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if i.ArchiveURL != "" {
		log.Printf("Extracting runtime archive %s -> %s", artifact, i.Prefix)
		if err := extract7z(artifact, i.Prefix); err != nil {
			return &ProvisionError{Step: "install", Err: err}
		}
	} else {
		argv := platform.InstallCommand(i.Desc, artifact, i.Prefix)
		log.Printf("Running runtime installer: %v", argv)
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		if code, tail, err := i.run(cmd); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &ProvisionError{Step: "install", ExitCode: code, Err: fmt.Errorf("%w: %s", err, tail)}
		}
	}

	if _, err := os.Stat(platform.CondaExe(i.Desc, i.Prefix)); err != nil {
		return &ProvisionError{Step: "verify", Err: fmt.Errorf("conda executable missing after install: %w", err)}
	}

	if err := os.WriteFile(filepath.Join(i.Prefix, markerName), []byte("ok\n"), 0644); err != nil {
		return &ProvisionError{Step: "verify", Err: err}
	}

	log.Printf("Runtime provisioned at %s", i.Prefix)
	return nil
}

// fetchArtifact downloads the installer artifact unless a prior download
// is already cached.
func (i *Installer) fetchArtifact(ctx context.Context) (string, error) {
	url := i.ArchiveURL
	filename := "runtime.7z"
	if url == "" {
		a := platform.RuntimeArtifactFor(i.Desc)
		url = a.URL
		filename = a.Filename
	}

	dest := filepath.Join(i.CacheDir, filename)
	if _, err := os.Stat(dest); err == nil {
		log.Printf("Installer artifact already cached: %s", dest)
		return dest, nil
	}

	log.Printf("Downloading runtime from %s", url)
	if err := i.Client.Fetch(ctx, url, dest, i.SHA256); err != nil {
		return "", &ProvisionError{Step: "download", Err: err}
	}
	return dest, nil
}
