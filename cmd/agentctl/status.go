package main

import (
	"flag"
	"fmt"

	"github.com/silver2dream/agentrun/internal/runstore"
)

func cmdStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	runsRoot := newRunsRootFlag(fs)
	runID := fs.String("run-id", "", "run id to inspect")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *runID == "" {
		errorf("status: --run-id is required\n")
		return 2
	}

	store := runstore.New(*runsRoot)
	sess, err := store.GetStatus(*runID)
	if err != nil {
		errorf("status: %v\n", err)
		return 1
	}

	fmt.Printf("run_id:         %s\n", sess.RunID)
	fmt.Printf("engine:         %s\n", sess.Engine)
	fmt.Printf("state:          %s\n", colorizeState(sess.State))
	if sess.SessionID != nil {
		fmt.Printf("session_id:     %s\n", *sess.SessionID)
	}
	if sess.PID != nil {
		fmt.Printf("pid:            %d\n", *sess.PID)
	}
	fmt.Printf("created_at:     %s\n", sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Printf("last_active_at: %s\n", sess.LastActiveAt.Format("2006-01-02T15:04:05Z07:00"))
	return 0
}

func cmdList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	runsRoot := newRunsRootFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store := runstore.New(*runsRoot)
	runs, err := store.ListRuns()
	if err != nil {
		errorf("list: %v\n", err)
		return 1
	}

	for _, sess := range runs {
		fmt.Printf("%-30s %-10s %-14s %s\n", sess.RunID, sess.Engine, sess.State, sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return 0
}
