//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// killProcessGroup kills only p; there are no process groups to target.
func killProcessGroup(p *os.Process) error {
	return p.Kill()
}
