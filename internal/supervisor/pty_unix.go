//go:build !windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
)

// unixPTY wraps the pty master file and the underlying *exec.Cmd so Wait
// and Terminate can reach the child's pid and exit status. Grounded in the
// teacher's internal/kickoff/pty_unix.go startPlatform, generalized to any
// command the supervisor is asked to run under a pty rather than one fixed
// CLI invocation.
type unixPTY struct {
	master *os.File
	cmd    *exec.Cmd
}

func startPTYProcess(cmd *exec.Cmd) (ptyHandle, error) {
	master, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}
	return &unixPTY{master: master, cmd: cmd}, nil
}

func (u *unixPTY) Read(p []byte) (int, error) { return u.master.Read(p) }
func (u *unixPTY) Close() error                { return u.master.Close() }

func (u *unixPTY) Pid() int {
	if u.cmd.Process == nil {
		return 0
	}
	return u.cmd.Process.Pid
}

func (u *unixPTY) Wait() (int, error) {
	err := u.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Terminate reuses the same SIGTERM→grace→SIGKILL escalation as the plain
// pipe-based Run path (terminate_unix.go).
func (u *unixPTY) Terminate(grace time.Duration) {
	if u.cmd.Process == nil {
		return
	}
	terminate(u.cmd.Process, grace)
}
