//go:build windows

package procrunner

import "os/exec"

func setProcGroup(c *exec.Cmd) {}

func killTree(c *exec.Cmd) {
	if c.Process != nil {
		_ = c.Process.Kill()
	}
}
