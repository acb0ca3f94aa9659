//go:build linux

package isorazor

import (
	"os/exec"
	"syscall"
)

// setWorkerProcAttr puts the worker in its own process group and kills it
// when the host dies.
func setWorkerProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// killWorker kills the worker's whole process group
func killWorker(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}
