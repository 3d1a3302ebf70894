//go:build windows

package supervisor

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/UserExistsError/conpty"
)

// winPTY wraps a ConPTY session. Grounded in the teacher's
// internal/kickoff/pty_windows.go startPlatform/conptyWrapper, generalized
// to whatever command the supervisor builds rather than one fixed CLI.
type winPTY struct {
	cpty *conpty.ConPty
}

func startPTYProcess(cmd *exec.Cmd) (ptyHandle, error) {
	cmdLine := buildCommandLine(cmd.Path, cmd.Args[1:])

	var opts []conpty.ConPtyOption
	if cmd.Dir != "" {
		opts = append(opts, conpty.ConPtyWorkDir(cmd.Dir))
	}
	if len(cmd.Env) > 0 {
		opts = append(opts, conpty.ConPtyEnv(cmd.Env))
	}
	opts = append(opts, conpty.ConPtyDimensions(80, 25))

	cpty, err := conpty.Start(cmdLine, opts...)
	if err != nil {
		return nil, err
	}
	return &winPTY{cpty: cpty}, nil
}

func (w *winPTY) Read(p []byte) (int, error) { return w.cpty.Read(p) }
func (w *winPTY) Close() error                { return w.cpty.Close() }

// Pid is unavailable through the ConPTY surface the teacher's go.mod
// pins; callers treat 0 as "pid not captured", same as any adapter that
// never reports one.
func (w *winPTY) Pid() int { return 0 }

func (w *winPTY) Wait() (int, error) {
	exitCode, err := w.cpty.Wait(context.Background())
	return int(exitCode), err
}

// Terminate has no graceful-stop primitive over ConPTY; closing the
// session tears down the child immediately, same tradeoff as
// terminate_windows.go's plain-pipe path.
func (w *winPTY) Terminate(grace time.Duration) {
	timer := time.NewTimer(grace)
	<-timer.C
	timer.Stop()
	_ = w.cpty.Close()
}

func buildCommandLine(path string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(path))
	for _, arg := range args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if strings.ContainsAny(arg, " \t\"") {
		return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
	}
	return arg
}
