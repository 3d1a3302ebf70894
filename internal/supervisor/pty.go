package supervisor

import (
	"context"
	"io"
	"os/exec"
	"strconv"
	"time"

	taskerr "github.com/silver2dream/agentrun/internal/errors"
)

// ptyHandle abstracts the platform-specific pseudo-terminal process started
// by startPTYProcess: a single combined read stream (a pty has no separate
// stdout/stderr), a pid for session tracking, a blocking wait for the exit
// code, and a terminate escalation. Grounded in the teacher's
// internal/kickoff/pty.go PTYExecutor, generalized from a single fixed CLI
// invocation into whatever command an adapter builds.
type ptyHandle interface {
	io.Reader
	Close() error
	Pid() int
	Wait() (exitCode int, err error)
	Terminate(grace time.Duration)
}

// RunPTY is the pty-attached counterpart to Run, used for adapters whose
// RequiresPTY() returns true (§10's domain-stack addition). Output is
// captured as a single combined stream into cap.stdout; cap.stderr stays
// empty. The same output cap, timeout, and SIGTERM→SIGKILL escalation rules
// apply as Run.
func (s *Supervisor) RunPTY(ctx context.Context, req Request) RunResult {
	path, lookErr := exec.LookPath(req.Command.Path)
	if lookErr != nil {
		return RunResult{Err: taskerr.Wrap(taskerr.EngineCrash, "spawn failed: "+lookErr.Error(), lookErr)}
	}

	cmd := exec.Command(path, req.Command.Args...)
	cmd.Dir = req.Dir
	cmd.Env = augmentedEnv()

	handle, startErr := startPTYProcess(cmd)
	if startErr != nil {
		return RunResult{Err: taskerr.Wrap(taskerr.EngineCrash, "spawn failed: "+startErr.Error(), startErr)}
	}
	defer handle.Close()

	cap := &capturer{limit: OutputCap}
	overflowCh := make(chan struct{}, 1)
	cap.onOverflow = func() {
		select {
		case overflowCh <- struct{}{}:
		default:
		}
	}

	go cap.drain(handle, &cap.stdout)

	waitDone := make(chan ptyWaitResult, 1)
	go func() {
		code, err := handle.Wait()
		waitDone <- ptyWaitResult{code: code, err: err}
	}()

	var timeoutTimer *time.Timer
	var timeoutCh <-chan time.Time
	if req.Timeout > 0 {
		timeoutTimer = time.NewTimer(req.Timeout)
		timeoutCh = timeoutTimer.C
		defer timeoutTimer.Stop()
	}

	pid := handle.Pid()

	select {
	case wr := <-waitDone:
		return finishPTY(cap, pid, wr)

	case <-overflowCh:
		handle.Terminate(overflowGrace)
		<-waitDone
		return RunResult{
			Stdout: cap.snapshot(&cap.stdout), PID: pid,
			Err: taskerr.New(taskerr.EngineCrash, "output exceeded 10 MiB"),
		}

	case <-timeoutCh:
		handle.Terminate(timeoutGrace)
		<-waitDone
		return RunResult{
			Stdout: cap.snapshot(&cap.stdout), PID: pid,
			Err: taskerr.New(taskerr.EngineTimeout, "engine timed out"),
		}

	case <-ctx.Done():
		handle.Terminate(timeoutGrace)
		<-waitDone
		return RunResult{
			Stdout: cap.snapshot(&cap.stdout), PID: pid,
			Err: taskerr.Wrap(taskerr.TaskStopped, "run stopped", ctx.Err()),
		}
	}
}

type ptyWaitResult struct {
	code int
	err  error
}

func finishPTY(cap *capturer, pid int, wr ptyWaitResult) RunResult {
	stdout := cap.snapshot(&cap.stdout)
	if wr.err != nil {
		return RunResult{Stdout: stdout, PID: pid, Err: taskerr.New(taskerr.EngineCrash, wr.err.Error())}
	}
	if wr.code != 0 {
		msg := string(stdout)
		if len(msg) > 200 {
			msg = msg[len(msg)-200:]
		}
		if msg == "" {
			msg = "exited with code " + strconv.Itoa(wr.code)
		}
		return RunResult{Stdout: stdout, ExitCode: wr.code, PID: pid,
			Err: taskerr.New(taskerr.EngineCrash, msg)}
	}
	return RunResult{Stdout: stdout, ExitCode: 0, PID: pid}
}
