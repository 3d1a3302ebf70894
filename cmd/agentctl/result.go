package main

import (
	"encoding/json"
	"flag"
	"os"

	"github.com/silver2dream/agentrun/internal/runstore"
)

func cmdResult(args []string) int {
	fs := flag.NewFlagSet("result", flag.ContinueOnError)
	runsRoot := newRunsRootFlag(fs)
	runID := fs.String("run-id", "", "run id to inspect")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *runID == "" {
		errorf("result: --run-id is required\n")
		return 2
	}

	store := runstore.New(*runsRoot)
	result, present, err := store.HasResult(*runID)
	if err != nil {
		errorf("result: %v\n", err)
		return 1
	}
	if !present {
		errorf("result: no result.json for %s yet\n", *runID)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		errorf("result: encode: %v\n", err)
		return 1
	}
	return 0
}
