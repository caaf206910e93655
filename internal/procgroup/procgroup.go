// Package procgroup spawns external fetcher processes in their own
// process group so that termination reaches the whole tree, not just the
// direct child. yt-dlp and streamlink both fork helpers that would
// otherwise survive a plain kill.
package procgroup

import (
	"os/exec"
	"syscall"
	"time"
)

// Terminate stops a process group gracefully: SIGTERM, wait up to grace
// for the exit to arrive on waitCh, then SIGKILL and drain. The command
// must have been started after Set(cmd). Safe on nil or never-started
// commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = Kill(cmd, syscall.SIGTERM)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	_ = Kill(cmd, syscall.SIGKILL)
	// SIGKILL cannot be ignored; the Wait must come back.
	return <-waitCh
}
