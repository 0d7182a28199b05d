//go:build unix

package procrunner

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the child in its own process group so the whole tree
// can be killed on timeout, including anything the tool forked.
func setProcGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killTree(c *exec.Cmd) {
	if c.Process == nil {
		return
	}
	// negative pid targets the process group
	if err := syscall.Kill(-c.Process.Pid, syscall.SIGKILL); err != nil {
		_ = c.Process.Kill()
	}
}
