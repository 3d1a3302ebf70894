//go:build !windows

package procutil

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// isAliveOS checks liveness on Unix via signal 0, then cross-checks the
// process start time against /proc/<pid>'s mtime where available to catch
// PID reuse after the expected process has exited.
func isAliveOS(pid int, expectedStartTime int64) bool {
	// signal 0 sends no signal but still performs the kernel's existence and
	// permission checks, the standard liveness probe.
	if err := unix.Kill(pid, 0); err != nil {
		return false
	}

	if expectedStartTime == 0 {
		return true
	}

	procDir := "/proc/" + strconv.Itoa(pid)
	fi, err := os.Stat(procDir)
	if err != nil {
		// No /proc (e.g. macOS): fall back to signal-0 liveness alone.
		return true
	}

	diff := fi.ModTime().Unix() - expectedStartTime
	if diff < 0 {
		diff = -diff
	}
	return diff <= 2
}
