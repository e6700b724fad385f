package platform

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// OS is the canonical operating system family.
type OS string

const (
	Windows OS = "windows"
	MacOS   OS = "macos"
	Linux   OS = "linux"
)

// Arch is the canonical CPU architecture.
type Arch string

const (
	AMD64 Arch = "x86_64"
	ARM64 Arch = "arm64"
)

// Descriptor identifies the machine this process runs on. It is computed
// once at startup and threaded through every component as data; nothing
// downstream re-probes the OS.
type Descriptor struct {
	OS   OS
	Arch Arch
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%s", d.OS, d.Arch)
}

// ErrUnsupported is returned when the OS/architecture combination has no
// known runtime artifact.
type ErrUnsupported struct {
	OS   string
	Arch string
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("unsupported platform: %s/%s", e.OS, e.Arch)
}

// Detect probes the current machine. Pure aside from reading runtime
// constants; fails only for unrecognized combinations.
func Detect() (Descriptor, error) {
	return describe(runtime.GOOS, runtime.GOARCH)
}

func describe(goos, goarch string) (Descriptor, error) {
	var d Descriptor

	switch goos {
	case "windows":
		d.OS = Windows
	case "darwin":
		d.OS = MacOS
	case "linux":
		d.OS = Linux
	default:
		return Descriptor{}, &ErrUnsupported{OS: goos, Arch: goarch}
	}

	arch, err := NormalizeArch(goarch)
	if err != nil {
		return Descriptor{}, &ErrUnsupported{OS: goos, Arch: goarch}
	}
	d.Arch = arch

	return d, nil
}

// NormalizeArch maps raw machine architecture aliases onto the canonical
// set. A wrong mapping here installs a binary that cannot run, with no
// error until execution, so the alias table is deliberately explicit.
func NormalizeArch(raw string) (Arch, error) {
	switch strings.ToLower(raw) {
	case "amd64", "x86_64", "x64":
		return AMD64, nil
	case "arm64", "aarch64":
		return ARM64, nil
	default:
		return "", fmt.Errorf("unknown architecture %q", raw)
	}
}

// CondaExe returns the conda executable path inside a runtime prefix.
func CondaExe(d Descriptor, prefix string) string {
	if d.OS == Windows {
		return filepath.Join(prefix, "Scripts", "conda.exe")
	}
	return filepath.Join(prefix, "bin", "conda")
}

// NpmName returns the npm launcher name for the platform. The tool itself
// still resolves inside the managed environment; only the file extension
// differs on Windows.
func NpmName(d Descriptor) string {
	if d.OS == Windows {
		return "npm.cmd"
	}
	return "npm"
}
