package adapter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"

	"github.com/silver2dream/agentrun/internal/runstore"
)

// CodexAdapter drives the `codex` CLI, grounded in the kit's own codex
// worker backend (internal/worker/codex.go): a JSON-mode invocation whose
// construction options are the recognized {command, default_args} pair per
// the adapter's design notes, rather than the kit's own runtime
// `--help`-sniffing (which would require the adapter to fork, a job that
// belongs to the supervisor alone).
type CodexAdapter struct {
	Command     string
	DefaultArgs []string
}

// NewCodexAdapter returns a CodexAdapter with its default command/flags.
func NewCodexAdapter() *CodexAdapter {
	return &CodexAdapter{
		Command:     "codex",
		DefaultArgs: []string{"exec", "--json", "--full-auto"},
	}
}

func (a *CodexAdapter) Name() string { return "codex" }

func (a *CodexAdapter) BuildStart(req runstore.Request) (Command, error) {
	args := append(append([]string{}, a.DefaultArgs...), "--cd", req.WorkspacePath, req.Message)
	return Command{Path: a.Command, Args: args}, nil
}

func (a *CodexAdapter) BuildSend(sessionID, message string, opts SendOptions) (Command, error) {
	args := append(append([]string{}, a.DefaultArgs...), "--cd", opts.Cwd, "resume", sessionID, message)
	return Command{Path: a.Command, Args: args}, nil
}

func (a *CodexAdapter) BuildStop(pid int) (Command, error) {
	// codex has no graceful-stop subcommand; the supervisor's SIGTERM path
	// covers it. Returning a no-op command keeps BuildStop total.
	return Command{}, nil
}

// codexEvent is the subset of codex's --json line events this adapter
// recognizes. Unrecognized lines are ignored; if none are recognized at
// all, Parse falls back to the trimmed raw capture per the parsing
// contract.
type codexEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Usage     *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *CodexAdapter) Parse(stdout, stderr []byte, exitCode int) Response {
	resp := Response{ExitCode: exitCode}

	var lastMessage string
	var sawEvent bool

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || (line[0] != '{' && line[0] != '[') {
			continue // tolerate non-JSON log prefix lines
		}
		var ev codexEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		sawEvent = true
		if ev.SessionID != "" {
			resp.SessionID = NormalizeSessionID(ev.SessionID)
		}
		if ev.Message != "" {
			lastMessage = ev.Message
		}
		if ev.Usage != nil {
			resp.TokenUsage = NormalizeTokenUsage(
				ev.Usage.InputTokens,
				ev.Usage.OutputTokens,
				ev.Usage.InputTokens+ev.Usage.OutputTokens,
				true,
			)
		}
	}

	if sawEvent && lastMessage != "" {
		resp.Output = lastMessage
	} else {
		resp.Output = strings.TrimSpace(string(stdout))
	}

	return resp
}
