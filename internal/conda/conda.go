// Package conda provisions the managed Miniconda runtime and the isolated
// environment the application runs in, and owns the only way commands are
// executed inside that environment.
package conda

import (
	"context"
	"fmt"
	"os/exec"
)

// Env is the managed environment handed to later stages. It is created by
// the Builder and read-only afterwards: every executable that lives in it
// must be resolved through Command, never through ambient PATH lookup.
type Env struct {
	Name     string
	Prefix   string // environment prefix directory
	CondaExe string // conda executable inside the managed runtime
}

// Command builds an invocation of name dispatched through the
// environment's launcher (`conda run --prefix`). This is the single most
// important contract in the install pipeline: a bare-name invocation of an
// environment tool silently resolves to nothing, or to an unrelated
// ambient binary.
func (e Env) Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, e.CondaExe, e.CommandArgs(name, args...)...)
}

// CommandArgs returns the launcher argument vector for a tool invocation.
// Split out so callers and tests can inspect what Command will execute.
func (e Env) CommandArgs(name string, args ...string) []string {
	out := []string{"run", "--prefix", e.Prefix, name}
	return append(out, args...)
}

// ProvisionError reports a failed runtime provisioning step.
type ProvisionError struct {
	Step     string // "download", "install", "verify"
	ExitCode int    // installer exit code, 0 when not applicable
	Err      error
}

func (e *ProvisionError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("runtime %s failed (exit %d): %v", e.Step, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("runtime %s failed: %v", e.Step, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// EnvError reports a failed environment create/update.
type EnvError struct {
	Err error
}

func (e *EnvError) Error() string { return fmt.Sprintf("environment setup failed: %v", e.Err) }
func (e *EnvError) Unwrap() error { return e.Err }
