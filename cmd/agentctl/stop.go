package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/silver2dream/agentrun/internal/adapter"
	"github.com/silver2dream/agentrun/internal/obslog"
	"github.com/silver2dream/agentrun/internal/runner"
	"github.com/silver2dream/agentrun/internal/runstore"
)

func cmdStop(args []string) int {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	runsRoot := newRunsRootFlag(fs)
	runID := fs.String("run-id", "", "run id to force-stop")
	forceMS := fs.Int("force-timeout-ms", 5000, "grace period before SIGKILL, in milliseconds")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *runID == "" {
		errorf("stop: --run-id is required\n")
		return 2
	}
	if *forceMS <= 0 {
		errorf("stop: --force-timeout-ms must be a positive integer\n")
		return 2
	}

	store := runstore.New(*runsRoot)
	log := obslog.New(obslog.FromEnv())
	r := runner.New(store, adapter.DefaultRegistry(), log)

	if err := r.ForceStop(*runID, time.Duration(*forceMS)*time.Millisecond); err != nil {
		errorf("stop: %v\n", err)
		return 1
	}

	fmt.Println("stopped")
	return 0
}
