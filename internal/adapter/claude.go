package adapter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"

	"github.com/silver2dream/agentrun/internal/runstore"
)

// ClaudeCodeAdapter drives `claude --output-format stream-json`, a
// line-delimited JSON event stream. The event shape is grounded in the
// StreamEvent schema used by a claude-code session manager elsewhere in the
// retrieved pack: each line is one event; assistant message content blocks
// accumulate into the final output, and a terminal "result" event carries
// the session id and any usage totals.
type ClaudeCodeAdapter struct {
	Command     string
	DefaultArgs []string
}

// NewClaudeCodeAdapter returns a ClaudeCodeAdapter with its default flags.
func NewClaudeCodeAdapter() *ClaudeCodeAdapter {
	return &ClaudeCodeAdapter{
		Command:     "claude",
		DefaultArgs: []string{"--print", "--output-format", "stream-json", "--verbose"},
	}
}

func (a *ClaudeCodeAdapter) Name() string { return "claude-code" }

func (a *ClaudeCodeAdapter) BuildStart(req runstore.Request) (Command, error) {
	args := append([]string{}, a.DefaultArgs...)
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	args = append(args, req.Message)
	return Command{Path: a.Command, Args: args}, nil
}

func (a *ClaudeCodeAdapter) BuildSend(sessionID, message string, opts SendOptions) (Command, error) {
	args := append([]string{}, a.DefaultArgs...)
	args = append(args, "--resume", sessionID, message)
	return Command{Path: a.Command, Args: args}, nil
}

func (a *ClaudeCodeAdapter) BuildStop(pid int) (Command, error) {
	return Command{}, nil
}

// contentBlock is one element of an assistant message's content array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// streamEvent is the subset of claude's NDJSON event schema this adapter
// consumes.
type streamEvent struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
	Result    string          `json:"result"`
	IsError   bool            `json:"is_error"`
	Usage     *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type assistantMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

func (a *ClaudeCodeAdapter) Parse(stdout, stderr []byte, exitCode int) Response {
	resp := Response{ExitCode: exitCode}

	var textParts []string
	var sawEvent bool

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || (line[0] != '{' && line[0] != '[') {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		sawEvent = true

		if ev.SessionID != "" {
			resp.SessionID = NormalizeSessionID(ev.SessionID)
		}

		switch ev.Type {
		case "assistant":
			var msg assistantMessage
			if len(ev.Message) > 0 && json.Unmarshal(ev.Message, &msg) == nil {
				for _, block := range msg.Content {
					if block.Type == "text" && block.Text != "" {
						textParts = append(textParts, block.Text)
					}
				}
			}
		case "result":
			if ev.Result != "" {
				textParts = append(textParts, ev.Result)
			}
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

	if sawEvent && len(textParts) > 0 {
		resp.Output = strings.Join(textParts, "")
	} else {
		resp.Output = strings.TrimSpace(string(stdout))
	}

	return resp
}
