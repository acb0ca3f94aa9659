//go:build !linux

package isorazor

import "os/exec"

func setWorkerProcAttr(cmd *exec.Cmd) {}

func killWorker(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
