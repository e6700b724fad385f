// Package deps installs the backend and frontend package dependencies
// inside the managed environment. Every package-manager invocation is
// dispatched through the environment launcher; nothing here ever resolves
// a tool name against the ambient PATH.
package deps

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"braindrived/internal/conda"
	"braindrived/internal/execx"
	"braindrived/internal/platform"
	"braindrived/internal/ports"
)

// Side names which half of the application an install step belongs to.
type Side string

const (
	Backend  Side = "backend"
	Frontend Side = "frontend"
)

// InstallError reports a failed dependency install. Dependencies are not
// optional, so the pipeline treats this as fatal; the output tail usually
// names the actual root cause (disk space, permissions, network).
type InstallError struct {
	Side       Side
	ExitCode   int
	OutputTail string
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("%s dependency install failed (exit %d): %s", e.Side, e.ExitCode, e.OutputTail)
}

// Installer runs the per-side dependency installs.
type Installer struct {
	Env   conda.Env
	Desc  platform.Descriptor
	Ports ports.Pair

	run func(cmd *exec.Cmd) (int, string, error)
}

func NewInstaller(env conda.Env, desc platform.Descriptor, p ports.Pair) *Installer {
	return &Installer{Env: env, Desc: desc, Ports: p, run: execx.Run}
}

// InstallBackend installs the Python dependencies and writes the backend
// .env when missing.
func (in *Installer) InstallBackend(ctx context.Context, appDir string) error {
	backendDir := filepath.Join(appDir, "backend")
	requirements := filepath.Join(backendDir, "requirements.txt")

	if _, err := os.Stat(requirements); err != nil {
		return &InstallError{Side: Backend, OutputTail: "requirements.txt not found in " + backendDir}
	}

	log.Printf("Installing backend dependencies from %s", requirements)
	cmd := in.Env.Command(ctx, "pip", "install", "-r", requirements)
	cmd.Dir = backendDir
	if code, tail, err := in.run(cmd); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &InstallError{Side: Backend, ExitCode: code, OutputTail: tail}
	}

	if err := in.writeBackendEnv(backendDir); err != nil {
		return &InstallError{Side: Backend, OutputTail: err.Error()}
	}

	log.Printf("Backend dependencies installed")
	return nil
}

// InstallFrontend installs the npm dependencies and writes the frontend
// .env when missing.
func (in *Installer) InstallFrontend(ctx context.Context, appDir string) error {
	frontendDir := filepath.Join(appDir, "frontend")

	if _, err := os.Stat(filepath.Join(frontendDir, "package.json")); err != nil {
		return &InstallError{Side: Frontend, OutputTail: "package.json not found in " + frontendDir}
	}

	log.Printf("Installing frontend dependencies in %s", frontendDir)
	cmd := in.Env.Command(ctx, platform.NpmName(in.Desc), "install")
	cmd.Dir = frontendDir
	if code, tail, err := in.run(cmd); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &InstallError{Side: Frontend, ExitCode: code, OutputTail: tail}
	}

	if err := in.writeFrontendEnv(frontendDir); err != nil {
		return &InstallError{Side: Frontend, OutputTail: err.Error()}
	}

	log.Printf("Frontend dependencies installed")
	return nil
}
