//go:build linux

package keeper

import (
	"os/exec"
	"syscall"
)

// JobCmd wraps exec.Cmd so the service and everything it spawns dies with
// the supervisor.
type JobCmd struct {
	*exec.Cmd
}

func NewJobCmd(cmd *exec.Cmd) *JobCmd {
	return &JobCmd{Cmd: cmd}
}

func (j *JobCmd) Start() error {
	if j.Cmd.SysProcAttr == nil {
		j.Cmd.SysProcAttr = &syscall.SysProcAttr{}
	}

	// Own process group, so Terminate/Kill reach npm's and uvicorn's
	// children, not just the direct child.
	j.Cmd.SysProcAttr.Setpgid = true

	// Child receives SIGKILL if the supervisor dies without cleanup.
	j.Cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL

	return j.Cmd.Start()
}

// Terminate asks the whole process group to shut down gracefully.
func (j *JobCmd) Terminate() error {
	if j.Process == nil {
		return nil
	}
	return syscall.Kill(-j.Process.Pid, syscall.SIGTERM)
}

// Kill force-terminates the whole process group.
func (j *JobCmd) Kill() error {
	if j.Process == nil {
		return nil
	}
	return syscall.Kill(-j.Process.Pid, syscall.SIGKILL)
}
