// Package supervisor runs an engine adapter's built command as a bounded
// subprocess: augmented PATH, piped output with a hard combined-output cap,
// a timeout, and SIGTERM→SIGKILL escalation on either limit. It never
// interprets the adapter's wire format — that stays the adapter's job
// (internal/adapter) — and the adapter never forks, times out, caps, or
// kills — that stays here. Grounded in the kit's claude-code backend
// (internal/worker/backend_claude.go), generalized from a single hardcoded
// CLI invocation into a generic bounded-subprocess runner.
package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/silver2dream/agentrun/internal/adapter"
	taskerr "github.com/silver2dream/agentrun/internal/errors"
)

// OutputCap is the hard combined stdout+stderr byte cap (§4.4 step 3). The
// boundary is inclusive: a capture whose total length equals the cap
// succeeds.
const OutputCap = 10 * 1024 * 1024 // 10 MiB

// overflowGrace is how long the supervisor waits after SIGTERM before
// escalating to SIGKILL on an output-cap overflow.
const overflowGrace = 1 * time.Second

// timeoutGrace is how long the supervisor waits after SIGTERM before
// escalating to SIGKILL on a timeout.
const timeoutGrace = 3 * time.Second

// Request is one bounded subprocess invocation.
type Request struct {
	Command adapter.Command
	Dir     string
	Timeout time.Duration
}

// Supervisor spawns adapter-built commands under the bounds in §4.4.
type Supervisor struct{}

// New returns a Supervisor.
func New() *Supervisor { return &Supervisor{} }

// RunResult is the raw captured streams, exit code, PID, and any
// supervisor-level error (timeout, overflow, spawn failure, non-zero exit)
// from one Run call. On a clean zero exit the caller is expected to hand
// stdout/stderr to the adapter's Parse; Run itself never calls Parse, since
// an adapter may not be available in every context that needs a bounded
// subprocess (e.g. BuildStop commands).
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	PID      int
	Err      *taskerr.TaskError
}

// Run spawns req.Command under the bounds described in the package doc.
func (s *Supervisor) Run(ctx context.Context, req Request) RunResult {
	path, lookErr := exec.LookPath(req.Command.Path)
	if lookErr != nil {
		return RunResult{Err: taskerr.Wrap(taskerr.EngineCrash, "spawn failed: "+lookErr.Error(), lookErr)}
	}

	cmd := exec.Command(path, req.Command.Args...)
	cmd.Dir = req.Dir
	cmd.Env = augmentedEnv()
	cmd.Stdin = nil

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{Err: taskerr.Wrap(taskerr.EngineCrash, "spawn failed: "+err.Error(), err)}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return RunResult{Err: taskerr.Wrap(taskerr.EngineCrash, "spawn failed: "+err.Error(), err)}
	}

	cap := &capturer{limit: OutputCap}

	if startErr := cmd.Start(); startErr != nil {
		return RunResult{Err: taskerr.Wrap(taskerr.EngineCrash, "spawn failed: "+startErr.Error(), startErr)}
	}

	pid := cmd.Process.Pid

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); cap.drain(stdoutPipe, &cap.stdout) }()
	go func() { defer wg.Done(); cap.drain(stderrPipe, &cap.stderr) }()

	overflowCh := make(chan struct{}, 1)
	cap.onOverflow = func() {
		select {
		case overflowCh <- struct{}{}:
		default:
		}
	}

	waitDone := make(chan error, 1)
	go func() { wg.Wait(); waitDone <- cmd.Wait() }()

	var timeoutTimer *time.Timer
	var timeoutCh <-chan time.Time
	if req.Timeout > 0 {
		timeoutTimer = time.NewTimer(req.Timeout)
		timeoutCh = timeoutTimer.C
		defer timeoutTimer.Stop()
	}

	select {
	case waitErr := <-waitDone:
		return finish(cap, pid, waitErr)

	case <-overflowCh:
		terminate(cmd.Process, overflowGrace)
		<-waitDone
		return RunResult{
			Stdout: cap.snapshot(&cap.stdout), Stderr: cap.snapshot(&cap.stderr),
			PID: pid, Err: taskerr.New(taskerr.EngineCrash, "output exceeded 10 MiB"),
		}

	case <-timeoutCh:
		terminate(cmd.Process, timeoutGrace)
		<-waitDone
		return RunResult{
			Stdout: cap.snapshot(&cap.stdout), Stderr: cap.snapshot(&cap.stderr),
			PID: pid, Err: taskerr.New(taskerr.EngineTimeout, "engine timed out"),
		}

	case <-ctx.Done():
		terminate(cmd.Process, timeoutGrace)
		<-waitDone
		return RunResult{
			Stdout: cap.snapshot(&cap.stdout), Stderr: cap.snapshot(&cap.stderr),
			PID: pid, Err: taskerr.Wrap(taskerr.TaskStopped, "run stopped", ctx.Err()),
		}
	}
}

func finish(cap *capturer, pid int, waitErr error) RunResult {
	stdout := cap.snapshot(&cap.stdout)
	stderr := cap.snapshot(&cap.stderr)

	exitCode := 0
	var exitErr *exec.ExitError
	if waitErr != nil {
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return RunResult{Stdout: stdout, Stderr: stderr, PID: pid,
				Err: taskerr.Wrap(taskerr.EngineCrash, waitErr.Error(), waitErr)}
		}
	}

	if exitCode != 0 {
		msg := string(bytes.TrimSpace(stderr))
		if msg == "" {
			msg = "exited with code " + strconv.Itoa(exitCode)
		}
		return RunResult{Stdout: stdout, Stderr: stderr, ExitCode: exitCode, PID: pid,
			Err: taskerr.New(taskerr.EngineCrash, msg)}
	}

	return RunResult{Stdout: stdout, Stderr: stderr, ExitCode: 0, PID: pid}
}

// augmentedEnv composes the process environment with common binary
// directories prepended to PATH, de-duplicated (§4.4 step 1).
func augmentedEnv() []string {
	extra := []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin"}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		extra = append(extra, filepath.Join(home, ".local", "bin"), filepath.Join(home, ".npm-global", "bin"))
	}

	env := os.Environ()
	var path string
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if len(kv) >= 5 && kv[:5] == "PATH=" {
			path = kv[5:]
			continue
		}
		out = append(out, kv)
	}

	seen := make(map[string]bool, len(extra))
	merged := make([]string, 0, len(extra)+8)
	for _, dir := range extra {
		if !seen[dir] {
			seen[dir] = true
			merged = append(merged, dir)
		}
	}
	for _, dir := range filepath.SplitList(path) {
		if dir != "" && !seen[dir] {
			seen[dir] = true
			merged = append(merged, dir)
		}
	}

	newPath := merged[0]
	for _, d := range merged[1:] {
		newPath += string(os.PathListSeparator) + d
	}
	out = append(out, "PATH="+newPath)
	return out
}
