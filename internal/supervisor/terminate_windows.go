//go:build windows

package supervisor

import (
	"os"
	"time"
)

// terminate on Windows has no SIGTERM equivalent for an arbitrary child
// process; os.Process.Kill is the only available primitive, so both the
// output-cap and timeout escalations collapse to an immediate hard kill
// after the configured grace window elapses.
func terminate(p *os.Process, grace time.Duration) {
	if p == nil {
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	<-timer.C
	_ = p.Kill()
}

// SignalStop is the Windows counterpart to SignalStop: a best-effort hard
// kill after grace, since there is no graceful-stop signal to send first.
func SignalStop(pid int, grace time.Duration) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	timer := time.NewTimer(grace)
	<-timer.C
	timer.Stop()
	_ = proc.Kill()
}
