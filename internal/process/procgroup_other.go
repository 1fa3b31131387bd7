//go:build !unix

package process

import "os/exec"

// setProcessGroup is a no-op; the pipe readers are closed after pipeGrace instead.
func setProcessGroup(*exec.Cmd) {}
