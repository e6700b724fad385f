// Package pipeline drives the installation stages in order: platform
// probe, runtime provisioning, environment build, repository clone,
// dependency install. Each stage is a precondition for the next; a
// failure halts the run and surfaces a stage-tagged error. No stage
// retries internally.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"

	"braindrived/internal/conda"
	"braindrived/internal/platform"
	"braindrived/internal/ports"
)

// RuntimeProvisioner is the managed-runtime stage.
type RuntimeProvisioner interface {
	Installed() bool
	Provision(ctx context.Context) error
}

// EnvBuilder is the managed-environment stage. Describe returns the
// environment handle without side effects, for resumed runs that already
// built it.
type EnvBuilder interface {
	Ensure(ctx context.Context) (conda.Env, error)
	Describe() conda.Env
}

// RepoManager is the repository stage. Update pulls the latest changes
// into an existing checkout.
type RepoManager interface {
	Cloned() bool
	Clone(ctx context.Context) error
	Update(ctx context.Context) error
}

// DepsInstaller is the dependency stage, built once the environment and
// ports are known.
type DepsInstaller interface {
	InstallBackend(ctx context.Context) error
	InstallFrontend(ctx context.Context) error
}

// Pipeline wires the stages together with persisted resume state.
type Pipeline struct {
	StatePath string
	LockPath  string

	Runtime RuntimeProvisioner
	Env     EnvBuilder
	Repo    RepoManager
	NewDeps func(env conda.Env, p ports.Pair) DepsInstaller

	Reporter Reporter
	// Journal receives every progress event for persistence; may be nil.
	Journal func(stage, status, message string)

	// detect is the platform probe; fixed in tests.
	detect func() (platform.Descriptor, error)

	mu      sync.Mutex
	running bool
	env     conda.Env
	desc    platform.Descriptor
}

func New() *Pipeline {
	return &Pipeline{detect: platform.Detect}
}

// CurrentEnv returns the managed environment from the last successful run.
func (p *Pipeline) CurrentEnv() conda.Env {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.env
}

// Descriptor returns the probed platform from the last run.
func (p *Pipeline) Descriptor() platform.Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.desc
}

// Running reports whether an install run is in flight.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) setRunning(v bool) {
	p.mu.Lock()
	p.running = v
	p.mu.Unlock()
}

// Run executes the pipeline, skipping stages the state file already marks
// complete. The returned state reflects everything recorded, including on
// failure.
func (p *Pipeline) Run(ctx context.Context) (*State, error) {
	lock, err := acquireLock(p.LockPath)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	p.setRunning(true)
	defer p.setRunning(false)

	st, err := LoadState(p.StatePath)
	if err != nil {
		return nil, err
	}

	var lastCompleted Stage
	done := func(stage Stage) { lastCompleted = stage }

	// Stage 1: platform probe. Pure, always re-run.
	p.emit(StageProbe, StatusStarted, "Detecting platform", 0)
	desc, err := p.detect()
	if err != nil {
		p.emit(StageProbe, StatusFailed, err.Error(), 0)
		return st, err
	}
	p.mu.Lock()
	p.desc = desc
	p.mu.Unlock()
	p.emit(StageProbe, StatusSucceeded, "Platform: "+desc.String(), 5)
	done(StageProbe)

	// Stage 2: managed runtime.
	if err := p.checkpoint(ctx, lastCompleted); err != nil {
		return st, err
	}
	if st.RuntimeProvisioned && p.Runtime.Installed() {
		p.emit(StageRuntime, StatusSucceeded, "Runtime already provisioned", 40)
	} else {
		p.emit(StageRuntime, StatusStarted, "Provisioning managed runtime", 10)
		if err := p.Runtime.Provision(ctx); err != nil {
			return st, p.fail(ctx, st, StageRuntime, lastCompleted, err)
		}
		st.RuntimeProvisioned = true
		if err := st.Save(p.StatePath); err != nil {
			return st, err
		}
		p.emit(StageRuntime, StatusSucceeded, "Managed runtime ready", 40)
	}
	done(StageRuntime)

	// Stage 3: managed environment.
	if err := p.checkpoint(ctx, lastCompleted); err != nil {
		return st, err
	}
	var env conda.Env
	if st.EnvironmentReady {
		env = p.Env.Describe()
		p.emit(StageEnv, StatusSucceeded, "Environment already built", 55)
	} else {
		p.emit(StageEnv, StatusStarted, "Building isolated environment", 45)
		env, err = p.Env.Ensure(ctx)
		if err != nil {
			return st, p.fail(ctx, st, StageEnv, lastCompleted, err)
		}
		st.EnvironmentReady = true
		if err := st.Save(p.StatePath); err != nil {
			return st, err
		}
		p.emit(StageEnv, StatusSucceeded, "Environment ready: "+env.Prefix, 55)
	}
	p.mu.Lock()
	p.env = env
	p.mu.Unlock()
	done(StageEnv)

	// Service ports are fixed on first run and reused forever after, so
	// written .env files and browser bookmarks stay valid.
	if st.Ports.Backend == 0 {
		st.Ports = ports.SelectPair(ports.DefaultPairs)
		log.Printf("Selected service ports: backend %d, frontend %d", st.Ports.Backend, st.Ports.Frontend)
		if err := st.Save(p.StatePath); err != nil {
			return st, err
		}
	}

	// Stage 4: application repository.
	if err := p.checkpoint(ctx, lastCompleted); err != nil {
		return st, err
	}
	if st.RepoCloned && p.Repo.Cloned() {
		p.emit(StageRepo, StatusSucceeded, "Repository already cloned", 70)
	} else {
		p.emit(StageRepo, StatusStarted, "Cloning application repository", 60)
		if err := p.Repo.Clone(ctx); err != nil {
			return st, p.fail(ctx, st, StageRepo, lastCompleted, err)
		}
		st.RepoCloned = true
		if err := st.Save(p.StatePath); err != nil {
			return st, err
		}
		p.emit(StageRepo, StatusSucceeded, "Repository cloned", 70)
	}
	done(StageRepo)

	// Stage 5: dependencies. Each side records its own completion, so a
	// frontend failure does not forget the backend's finished work.
	if err := p.checkpoint(ctx, lastCompleted); err != nil {
		return st, err
	}
	installer := p.NewDeps(env, st.Ports)

	if !st.BackendDepsInstalled {
		p.emit(StageDeps, StatusStarted, "Installing backend dependencies", 75)
		if err := installer.InstallBackend(ctx); err != nil {
			return st, p.fail(ctx, st, StageDeps, lastCompleted, err)
		}
		st.BackendDepsInstalled = true
		if err := st.Save(p.StatePath); err != nil {
			return st, err
		}
	}

	if err := p.checkpoint(ctx, lastCompleted); err != nil {
		return st, err
	}
	if !st.FrontendDepsInstalled {
		p.emit(StageDeps, StatusStarted, "Installing frontend dependencies", 85)
		if err := installer.InstallFrontend(ctx); err != nil {
			return st, p.fail(ctx, st, StageDeps, lastCompleted, err)
		}
		st.FrontendDepsInstalled = true
		if err := st.Save(p.StatePath); err != nil {
			return st, err
		}
	}

	st.DependenciesInstalled = true
	if err := st.Save(p.StatePath); err != nil {
		return st, err
	}
	p.emit(StageDeps, StatusSucceeded, "Dependencies installed", 100)
	done(StageDeps)

	log.Printf("Installation pipeline completed")
	return st, nil
}

// Update refreshes an installed application: the repository is pulled,
// the dependency flags are cleared, and the pipeline is re-run, which
// redoes the dependency stage against the new tree and leaves runtime and
// environment in place. On a machine without a usable checkout it falls
// through to a plain Run, which clones.
func (p *Pipeline) Update(ctx context.Context) (*State, error) {
	if err := p.refreshRepo(ctx); err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// refreshRepo pulls the checkout and clears the dependency flags so the
// following run redoes them.
func (p *Pipeline) refreshRepo(ctx context.Context) error {
	lock, err := acquireLock(p.LockPath)
	if err != nil {
		return err
	}
	defer lock.release()

	st, err := LoadState(p.StatePath)
	if err != nil {
		return err
	}
	if !st.RepoCloned || !p.Repo.Cloned() {
		return nil
	}

	if ctx.Err() != nil {
		return &CancelledError{}
	}

	p.emit(StageRepo, StatusStarted, "Updating application repository", 60)
	if err := p.Repo.Update(ctx); err != nil {
		return p.fail(ctx, st, StageRepo, "", err)
	}

	st.BackendDepsInstalled = false
	st.FrontendDepsInstalled = false
	st.DependenciesInstalled = false
	if err := st.Save(p.StatePath); err != nil {
		return err
	}
	p.emit(StageRepo, StatusSucceeded, "Repository updated", 70)
	return nil
}

// Report publishes a progress event for work driven around the staged
// run, such as service startup after an install.
func (p *Pipeline) Report(stage Stage, status Status, message string, percent int) {
	p.emit(stage, status, message, percent)
}

// checkpoint is the cancellation gate placed before every stage that
// spawns subprocesses.
func (p *Pipeline) checkpoint(ctx context.Context, lastCompleted Stage) error {
	if ctx.Err() != nil {
		return &CancelledError{LastCompleted: lastCompleted}
	}
	return nil
}

// fail reports the stage failure, converting a context cancellation into
// the cancellation error so partial work is attributed correctly.
func (p *Pipeline) fail(ctx context.Context, st *State, stage Stage, lastCompleted Stage, err error) error {
	if ctx.Err() != nil {
		p.emit(stage, StatusFailed, "cancelled", 0)
		return &CancelledError{LastCompleted: lastCompleted}
	}
	p.emit(stage, StatusFailed, err.Error(), 0)
	return fmt.Errorf("stage %s: %w", stage, err)
}

func (p *Pipeline) emit(stage Stage, status Status, message string, percent int) {
	log.Printf("[%s] %s: %s", stage, status, message)
	if p.Reporter != nil {
		p.Reporter(ProgressEvent{Stage: stage, Status: status, Message: message, Percent: percent})
	}
	if p.Journal != nil {
		p.Journal(string(stage), string(status), message)
	}
}
