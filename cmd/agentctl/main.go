// Command agentctl is the operator CLI for submitting, inspecting, and
// stopping runs against an agentrund run store.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/silver2dream/agentrun/internal/buildinfo"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) >= 1 {
		switch args[0] {
		case "--version", "-v":
			fmt.Println(buildinfo.Version)
			return 0
		case "--help", "-h":
			usage()
			return 0
		}
	}

	if len(args) < 1 {
		usage()
		return 2
	}

	switch args[0] {
	case "submit":
		return cmdSubmit(args[1:])
	case "status":
		return cmdStatus(args[1:])
	case "list":
		return cmdList(args[1:])
	case "result":
		return cmdResult(args[1:])
	case "stop":
		return cmdStop(args[1:])
	case "version":
		fmt.Println(buildinfo.Version)
		return 0
	case "help":
		usage()
		return 0
	default:
		errorf("unknown command: %s\n\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `agentctl - agent run store CLI

Usage:
  agentctl <command> [options]

Commands:
  submit    Create a new run from a request JSON file
  status    Show a run's session state
  list      List every run in the store
  result    Print a completed run's result.json
  stop      Force-stop a running run
  version   Show version

Examples:
  agentctl submit --runs-root .agentrun/runs --file request.json
  agentctl status --runs-root .agentrun/runs --run-id run-abc123
  agentctl list --runs-root .agentrun/runs
`)
}

func errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
}

func newRunsRootFlag(fs *flag.FlagSet) *string {
	return fs.String("runs-root", ".agentrun/runs", "run store root directory")
}
