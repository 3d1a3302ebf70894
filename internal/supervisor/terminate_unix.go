//go:build !windows

package supervisor

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// terminate sends SIGTERM, waits grace, then SIGKILL if the process has not
// already reaped (§4.4 steps 3-4's escalation).
func terminate(p *os.Process, grace time.Duration) {
	if p == nil {
		return
	}
	_ = unix.Kill(p.Pid, unix.SIGTERM)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	<-timer.C
	// os.Process.Kill is a no-op once the process has been reaped by Wait.
	_ = p.Kill()
}

// SignalStop implements the cancellation escalation in §5: SIGTERM pid,
// wait grace, SIGKILL if the process is still alive. Used by a user-initiated
// stop against a pid the caller already knows (session.pid), independent of
// any Supervisor.Run in flight for it.
func SignalStop(pid int, grace time.Duration) {
	if unix.Kill(pid, 0) != nil {
		return // already dead
	}
	_ = unix.Kill(pid, unix.SIGTERM)
	timer := time.NewTimer(grace)
	<-timer.C
	timer.Stop()
	if unix.Kill(pid, 0) == nil {
		_ = unix.Kill(pid, unix.SIGKILL)
	}
}
