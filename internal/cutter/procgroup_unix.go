//go:build !windows

package cutter

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the cutter child in its own process group so that a
// cancelled context's kill signal (sent to the group) can't leave an
// orphaned grandchild, mirroring the grandchild-kill caution the live
// downloader takes explicitly.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
