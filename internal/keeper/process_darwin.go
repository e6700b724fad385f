//go:build darwin

package keeper

import (
	"os/exec"
	"syscall"
)

// JobCmd wraps exec.Cmd so signals reach the service's whole process
// group. macOS has no parent-death signal; StopAll on shutdown is the
// cleanup path.
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
	j.Cmd.SysProcAttr.Setpgid = true
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
