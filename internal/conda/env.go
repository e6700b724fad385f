package conda

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"braindrived/internal/execx"
)

// EnvSpec enumerates what the managed environment must contain.
type EnvSpec struct {
	Name     string
	Python   string   // interpreter version, e.g. "3.11"
	Packages []string // additional conda packages (nodejs, git, ...)
}

// DefaultEnvSpec pins the versions the application needs: a Python
// backend, Node.js for the frontend toolchain, and git for repository
// operations, all isolated from whatever the host system carries.
func DefaultEnvSpec(name string) EnvSpec {
	return EnvSpec{
		Name:     name,
		Python:   "3.11",
		Packages: []string{"nodejs", "git"},
	}
}

// tosChannels are the package channels whose terms of service have to be
// accepted before conda will install from them non-interactively.
var tosChannels = []string{
	"https://repo.anaconda.com/pkgs/main",
	"https://repo.anaconda.com/pkgs/r",
	"https://repo.anaconda.com/pkgs/msys2",
}

// Builder creates or updates the managed environment inside the runtime.
type Builder struct {
	CondaExe string

	run func(cmd *exec.Cmd) (int, string, error)
}

func NewBuilder(condaExe string) *Builder {
	return &Builder{CondaExe: condaExe, run: execx.Run}
}

// Ensure makes the environment at prefix match spec. Create-or-update: an
// existing environment gets the missing components installed into it, a
// missing one is created fresh, and an unusable partial one (interrupted
// prior run) is removed and recreated.
func (b *Builder) Ensure(ctx context.Context, prefix string, spec EnvSpec) (Env, error) {
	if err := b.acceptTerms(ctx); err != nil {
		return Env{}, &EnvError{Err: err}
	}

	packages := append([]string{"python=" + spec.Python}, spec.Packages...)

	if b.envExists(prefix) {
		log.Printf("Environment %s exists at %s, updating", spec.Name, prefix)
		code, tail, err := b.conda(ctx, append([]string{"install", "--prefix", prefix, "-y"}, packages...)...)
		if err == nil {
			return b.env(prefix, spec), nil
		}
		if ctx.Err() != nil {
			return Env{}, ctx.Err()
		}

		// A half-built prefix makes conda refuse the update. Clear it
		// and fall through to a fresh create.
		log.Printf("Environment update failed (exit %d): %s", code, tail)
		log.Printf("Removing unusable environment at %s", prefix)
		if err := os.RemoveAll(prefix); err != nil {
			return Env{}, &EnvError{Err: fmt.Errorf("failed to remove stale environment: %w", err)}
		}
	}

	log.Printf("Creating environment %s at %s", spec.Name, prefix)
	code, tail, err := b.conda(ctx, append([]string{"create", "--prefix", prefix, "-y"}, packages...)...)
	if err != nil {
		if ctx.Err() != nil {
			return Env{}, ctx.Err()
		}
		return Env{}, &EnvError{Err: fmt.Errorf("conda create exited %d: %s", code, tail)}
	}

	return b.env(prefix, spec), nil
}

func (b *Builder) env(prefix string, spec EnvSpec) Env {
	return Env{Name: spec.Name, Prefix: prefix, CondaExe: b.CondaExe}
}

// envExists checks for conda's own metadata directory rather than the bare
// prefix, so a directory created by a crashed run does not count.
func (b *Builder) envExists(prefix string) bool {
	_, err := os.Stat(filepath.Join(prefix, "conda-meta"))
	return err == nil
}

// acceptTerms accepts the required channel terms of service. "already
// accepted" responses are fine; anything else fails the build.
func (b *Builder) acceptTerms(ctx context.Context) error {
	for _, channel := range tosChannels {
		code, tail, err := b.conda(ctx, "tos", "accept", "--override-channels", "--channel", channel)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if strings.Contains(strings.ToLower(tail), "already accepted") {
				continue
			}
			return fmt.Errorf("failed to accept terms for %s (exit %d): %s", channel, code, tail)
		}
	}
	return nil
}

func (b *Builder) conda(ctx context.Context, args ...string) (int, string, error) {
	cmd := exec.CommandContext(ctx, b.CondaExe, args...)
	return b.run(cmd)
}
