package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/silver2dream/agentrun/internal/runstore"
)

func cmdSubmit(args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	runsRoot := newRunsRootFlag(fs)
	file := fs.String("file", "", "path to a request.json payload ('-' for stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *file == "" {
		errorf("submit: --file is required\n")
		return 2
	}

	data, err := readAll(*file)
	if err != nil {
		errorf("submit: %v\n", err)
		return 1
	}

	var req runstore.Request
	if err := json.Unmarshal(data, &req); err != nil {
		errorf("submit: parse request: %v\n", err)
		return 1
	}
	req = req.WithDefaults()

	store := runstore.New(*runsRoot)
	runID, err := store.CreateRun(req)
	if err != nil {
		errorf("submit: %v\n", err)
		return 1
	}

	out, err := json.Marshal(struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}{RunID: runID, Status: "created"})
	if err != nil {
		errorf("submit: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

func readAll(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
