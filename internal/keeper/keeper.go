// Package keeper supervises the two long-lived service processes. It owns
// their lifecycle state machine and their output streams; everything else
// observes through Status and Tail.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"braindrived/internal/conda"
	"braindrived/internal/execx"
	"braindrived/internal/platform"
	"braindrived/internal/ports"
)

// Role identifies one of the supervised services.
type Role string

const (
	RoleBackend  Role = "backend"
	RoleFrontend Role = "frontend"
)

// State is the lifecycle state of a supervised service.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
	Failed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRunning is returned by Start when the role is Running or
	// Starting; a second live process per role is never spawned.
	ErrAlreadyRunning = errors.New("service is already running")

	ErrUnknownRole = errors.New("unknown service role")
)

// StartError reports a failed service launch.
type StartError struct {
	Role Role
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Role, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Options tune liveness detection and shutdown.
type Options struct {
	// GraceWindow is how long a process must stay alive after launch to
	// be considered Running when health probing is disabled.
	GraceWindow time.Duration
	// HealthCheck enables TCP probing of the service port; the service
	// is Running only once the port accepts, and Failed if it never does
	// within HealthTimeout.
	HealthCheck   bool
	HealthTimeout time.Duration
	// StopTimeout bounds the graceful shutdown before force kill.
	StopTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		GraceWindow:   3 * time.Second,
		HealthCheck:   true,
		HealthTimeout: 60 * time.Second,
		StopTimeout:   10 * time.Second,
	}
}

type proc struct {
	cmd      *JobCmd
	state    State
	exitCode int
	tail     *execx.TailBuffer
	stopping bool
	done     chan struct{}
}

// Supervisor starts, monitors and stops the backend and frontend service
// processes. Service commands are always dispatched through the managed
// environment's launcher.
type Supervisor struct {
	env    conda.Env
	desc   platform.Descriptor
	appDir string
	ports  ports.Pair
	opts   Options

	mu    sync.Mutex
	procs map[Role]*proc

	// newCommand builds the service command; replaced in tests.
	newCommand func(role Role) (*exec.Cmd, error)
}

func NewSupervisor(env conda.Env, desc platform.Descriptor, appDir string, p ports.Pair, opts Options) *Supervisor {
	s := &Supervisor{
		env:    env,
		desc:   desc,
		appDir: appDir,
		ports:  p,
		opts:   opts,
		procs:  make(map[Role]*proc),
	}
	s.newCommand = s.buildCommand
	return s
}

// Reconfigure points the supervisor at a freshly provisioned environment
// and port selection. Only allowed while nothing is running.
func (s *Supervisor) Reconfigure(env conda.Env, p ports.Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = env
	s.ports = p
}

// Start launches the service for role. Fails with ErrAlreadyRunning when
// a live process already exists for the role.
func (s *Supervisor) Start(role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.procs[role]; ok {
		switch cur.state {
		case Running, Starting, Stopping:
			return ErrAlreadyRunning
		}
	}

	cmd, err := s.newCommand(role)
	if err != nil {
		return &StartError{Role: role, Err: err}
	}

	p := &proc{
		tail: execx.NewTailBuffer(execx.DefaultTailSize),
		done: make(chan struct{}),
	}
	// os/exec drains both streams into the tail for the process's whole
	// lifetime, so the child never blocks on a full pipe.
	cmd.Stdout = p.tail
	cmd.Stderr = p.tail

	job := NewJobCmd(cmd)
	if err := job.Start(); err != nil {
		return &StartError{Role: role, Err: err}
	}

	p.cmd = job
	p.state = Starting
	s.procs[role] = p

	log.Printf("Started %s (pid %d)", role, job.Process.Pid)
	go s.watch(role, p)

	return nil
}

// watch observes process exit and records the terminal state. An exit
// while Starting or Running is a Failed service, never a silent Stopped.
func (s *Supervisor) watch(role Role, p *proc) {
	err := p.cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	p.exitCode = p.cmd.ProcessState.ExitCode()
	if p.stopping {
		p.state = Stopped
	} else {
		p.state = Failed
		log.Printf("Service %s exited unexpectedly (exit %d): %v", role, p.exitCode, err)
	}
	close(p.done)
}

// WaitReady blocks until the role reaches Running, or reports why it
// could not. With health probing enabled the service port must accept a
// TCP connection; otherwise surviving the grace window is enough.
func (s *Supervisor) WaitReady(ctx context.Context, role Role) error {
	deadline := time.Now().Add(s.opts.GraceWindow)
	if s.opts.HealthCheck {
		deadline = time.Now().Add(s.opts.HealthTimeout)
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		p, ok := s.procs[role]
		var state State
		var exitCode int
		if ok {
			state, exitCode = p.state, p.exitCode
		}
		s.mu.Unlock()

		if !ok {
			return &StartError{Role: role, Err: errors.New("service not started")}
		}

		switch state {
		case Failed, Stopped:
			return &StartError{Role: role, Err: fmt.Errorf("service exited early (exit %d): %s", exitCode, s.Tail(role))}
		case Running:
			return nil
		}

		if s.opts.HealthCheck && s.probe(role) {
			s.setState(role, Starting, Running)
			log.Printf("Service %s is ready on port %d", role, s.portFor(role))
			return nil
		}

		if time.Now().After(deadline) {
			if s.opts.HealthCheck {
				s.Stop(role)
				return &StartError{Role: role, Err: fmt.Errorf("no response on port %d within %s", s.portFor(role), s.opts.HealthTimeout)}
			}
			// Alive past the grace window counts as running.
			s.setState(role, Starting, Running)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// StartAll brings up both services in dependency order: the backend must
// be ready before the frontend is attempted, since the frontend depends
// on the backend's network endpoint.
func (s *Supervisor) StartAll(ctx context.Context) error {
	if err := s.Start(RoleBackend); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		return err
	}
	if err := s.WaitReady(ctx, RoleBackend); err != nil {
		return err
	}

	if err := s.Start(RoleFrontend); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		return err
	}
	return s.WaitReady(ctx, RoleFrontend)
}

// Stop terminates the service for role: graceful signal, bounded wait,
// then force kill. A role that is already stopped is a successful no-op.
func (s *Supervisor) Stop(role Role) error {
	s.mu.Lock()
	p, ok := s.procs[role]
	if !ok || p.state == Stopped || p.state == Failed {
		s.mu.Unlock()
		return nil
	}
	p.stopping = true
	p.state = Stopping
	job := p.cmd
	s.mu.Unlock()

	log.Printf("Stopping %s...", role)
	if err := job.Terminate(); err != nil {
		job.Kill()
	}

	select {
	case <-p.done:
	case <-time.After(s.opts.StopTimeout):
		log.Printf("Graceful stop of %s timed out, killing", role)
		job.Kill()
		<-p.done
	}

	log.Printf("Stopped %s", role)
	return nil
}

// StopAll stops both services, frontend first so it never talks to a dead
// backend while draining.
func (s *Supervisor) StopAll() {
	s.Stop(RoleFrontend)
	s.Stop(RoleBackend)
}

// Status is a non-blocking read of the role's current state.
func (s *Supervisor) Status(role Role) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[role]; ok {
		return p.state
	}
	return Stopped
}

// ExitCode returns the last recorded exit code for role, or 0.
func (s *Supervisor) ExitCode(role Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[role]; ok {
		return p.exitCode
	}
	return 0
}

// Tail returns the captured tail of the role's combined output.
func (s *Supervisor) Tail(role Role) string {
	s.mu.Lock()
	p, ok := s.procs[role]
	s.mu.Unlock()
	if !ok {
		return ""
	}
	return p.tail.String()
}

// Ports returns the configured service ports.
func (s *Supervisor) Ports() ports.Pair { return s.ports }

func (s *Supervisor) setState(role Role, from, to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[role]; ok && p.state == from {
		p.state = to
	}
}

func (s *Supervisor) portFor(role Role) int {
	if role == RoleBackend {
		return s.ports.Backend
	}
	return s.ports.Frontend
}

func (s *Supervisor) probe(role Role) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", s.portFor(role))
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// buildCommand constructs the service command through the environment
// launcher. Host and port are passed through to the service; the
// supervisor itself never binds them.
func (s *Supervisor) buildCommand(role Role) (*exec.Cmd, error) {
	ctx := context.Background()
	switch role {
	case RoleBackend:
		cmd := s.env.Command(ctx, "uvicorn", "main:app",
			"--host", "0.0.0.0",
			"--port", fmt.Sprint(s.ports.Backend))
		cmd.Dir = filepath.Join(s.appDir, "backend")
		return cmd, nil
	case RoleFrontend:
		cmd := s.env.Command(ctx, platform.NpmName(s.desc), "run", "dev", "--",
			"--host", "localhost",
			"--port", fmt.Sprint(s.ports.Frontend))
		cmd.Dir = filepath.Join(s.appDir, "frontend")
		return cmd, nil
	default:
		return nil, ErrUnknownRole
	}
}
