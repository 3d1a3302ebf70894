package main

import (
	"os"

	"golang.org/x/term"

	"github.com/silver2dream/agentrun/internal/session"
)

// colorsEnabled reports whether stdout is an interactive terminal that
// should receive ANSI color codes, following the same NO_COLOR/TTY-detection
// rule the kit's own console formatter uses.
func colorsEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorBold  = "\033[1m"
)

func colorize(code, s string) string {
	if !colorsEnabled() {
		return s
	}
	return code + s + colorReset
}

// colorizeState renders a session state green when terminal-success, red
// when terminal-failure, and plain otherwise.
func colorizeState(s session.State) string {
	switch s {
	case session.Completed:
		return colorize(colorGreen, string(s))
	case session.Failed:
		return colorize(colorRed, string(s))
	default:
		return string(s)
	}
}
