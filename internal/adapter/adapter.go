// Package adapter defines the Engine Adapter capability set (C3): building
// a subprocess argument vector from a request, and parsing that
// subprocess's captured output into a structured Response. Adapters never
// spawn, time-bound, cap, or kill a process themselves — that is the
// supervisor's job (internal/supervisor).
package adapter

import (
	"strings"

	"github.com/silver2dream/agentrun/internal/runstore"
)

// Command is a subprocess invocation an adapter asks the supervisor to run.
type Command struct {
	Path string
	Args []string
}

// SendOptions carries the per-call options available to Adapter.BuildSend.
type SendOptions struct {
	TimeoutMS float64
	Cwd       string
}

// Response is the adapter's parsed view of one subprocess invocation.
type Response struct {
	Output     string
	PID        int
	ExitCode   int
	SessionID  *string
	TokenUsage *runstore.TokenUsage
	Error      *runstore.ResultError
}

// Adapter knows how to drive one external coding-agent CLI. A fresh Adapter
// instance is produced by the registry per call; adapters hold no shared
// mutable state across invocations.
type Adapter interface {
	// Name returns the adapter's registered engine name.
	Name() string

	// BuildStart composes the argument vector for a "new" mode request.
	BuildStart(req runstore.Request) (Command, error)

	// BuildSend composes the argument vector for a "resume" mode request.
	BuildSend(sessionID, message string, opts SendOptions) (Command, error)

	// Parse interprets a completed invocation's captured streams and exit
	// code into a Response. The runner only calls Parse after the
	// supervisor reports a zero exit; on non-zero exit the supervisor
	// returns an ENGINE_CRASH error instead and stdout is never handed to
	// the adapter.
	Parse(stdout, stderr []byte, exitCode int) Response
}

// Stopper is an optional capability: an adapter that can ask its engine to
// stop gracefully through its own CLI (rather than relying solely on the
// supervisor's SIGTERM/SIGKILL escalation) implements this.
type Stopper interface {
	BuildStop(pid int) (Command, error)
}

// PTYRequirer is an optional capability: an adapter whose engine emits
// terminal control sequences (progress bars, cursor movement) rather than
// line-delimited structured output implements this to ask the supervisor
// for a pty-attached invocation instead of plain piped stdout/stderr.
type PTYRequirer interface {
	RequiresPTY() bool
}

// NormalizeSessionID enforces the parsing contract: empty strings and
// whitespace-only strings are treated as null, never propagated.
func NormalizeSessionID(raw string) *string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	v := raw
	return &v
}

// NormalizeTokenUsage enforces the parsing contract: a token usage record
// is only accepted if every count is present and non-negative.
func NormalizeTokenUsage(prompt, completion, total int, ok bool) *runstore.TokenUsage {
	if !ok || prompt < 0 || completion < 0 || total < 0 {
		return nil
	}
	return &runstore.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}
}
