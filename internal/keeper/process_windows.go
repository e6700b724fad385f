//go:build windows

package keeper

import (
	"os/exec"
	"syscall"
)

// JobCmd wraps exec.Cmd for Windows. The child gets its own process group
// and no console window; termination is a hard kill, since uvicorn and
// the Vite dev server have no graceful console signal we can deliver to a
// detached group reliably.
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
	j.Cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
	j.Cmd.SysProcAttr.HideWindow = true
	return j.Cmd.Start()
}

func (j *JobCmd) Terminate() error {
	if j.Process == nil {
		return nil
	}
	return j.Process.Kill()
}

func (j *JobCmd) Kill() error {
	if j.Process == nil {
		return nil
	}
	return j.Process.Kill()
}
