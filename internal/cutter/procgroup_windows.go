//go:build windows

package cutter

import "os/exec"

// setProcessGroup is a no-op on windows; process-group kill semantics are
// unix-specific and the cutter's context-cancellation kill on windows
// relies on exec.Cmd's default child-kill behavior instead.
func setProcessGroup(cmd *exec.Cmd) {}
