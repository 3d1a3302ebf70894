package runner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/silver2dream/agentrun/internal/adapter"
	"github.com/silver2dream/agentrun/internal/runstore"
	"github.com/silver2dream/agentrun/internal/session"
)

// echoAdapter drives the real `echo` binary so tests can exercise the full
// consume->admit->invoke->write pipeline without depending on a real coding
// agent CLI being installed.
type echoAdapter struct{ text string }

func (a *echoAdapter) Name() string { return "echo-test" }
func (a *echoAdapter) BuildStart(req runstore.Request) (adapter.Command, error) {
	return adapter.Command{Path: "echo", Args: []string{a.text}}, nil
}
func (a *echoAdapter) BuildSend(sessionID, message string, opts adapter.SendOptions) (adapter.Command, error) {
	return adapter.Command{Path: "echo", Args: []string{a.text}}, nil
}
func (a *echoAdapter) Parse(stdout, stderr []byte, exitCode int) adapter.Response {
	sid := "sess-from-parse"
	return adapter.Response{Output: strings.TrimSpace(string(stdout)), SessionID: &sid}
}

func newTestRunner(t *testing.T) (*Runner, *runstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := runstore.New(dir)

	reg := adapter.NewRegistry()
	reg.Register("echo-test", func() adapter.Adapter { return &echoAdapter{text: "hello from test"} })

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return New(store, reg, log), store, dir
}

func newRequest(t *testing.T, workspace string) runstore.Request {
	t.Helper()
	return runstore.Request{
		TaskID:        "t1",
		Intent:        runstore.IntentCoding,
		WorkspacePath: workspace,
		Message:       "do the thing",
		Engine:        "echo-test",
		Mode:          runstore.ModeNew,
		Constraints:   runstore.Constraints{TimeoutMS: 5000},
	}
}

func TestRun_successPath(t *testing.T) {
	r, store, _ := newTestRunner(t)
	ws := t.TempDir()

	runID, err := store.CreateRun(newRequest(t, ws))
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	if rerr := r.Run(context.Background(), runID); rerr != nil {
		t.Fatalf("Run: %v", rerr)
	}

	sess, err := store.GetStatus(runID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if sess.State != session.Completed {
		t.Errorf("State = %v, want Completed", sess.State)
	}

	result, present, err := store.HasResult(runID)
	if err != nil || !present {
		t.Fatalf("HasResult: present=%v err=%v", present, err)
	}
	if result.Status != runstore.StatusCompleted {
		t.Errorf("Status = %v, want completed", result.Status)
	}
	if result.Summary != "hello from test" {
		t.Errorf("Summary = %q, want %q", result.Summary, "hello from test")
	}
	if result.OutputPath == nil {
		t.Fatal("OutputPath should be set on success")
	}
	data, err := os.ReadFile(*result.OutputPath)
	if err != nil || strings.TrimSpace(string(data)) != "hello from test" {
		t.Errorf("output.txt contents = %q, err=%v", data, err)
	}
}

func TestRun_unknownEngineFailsWithResult(t *testing.T) {
	r, store, _ := newTestRunner(t)
	ws := t.TempDir()

	req := newRequest(t, ws)
	req.Engine = "no-such-engine"
	runID, err := store.CreateRun(req)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	_ = r.Run(context.Background(), runID)

	result, present, err := store.HasResult(runID)
	if err != nil || !present {
		t.Fatalf("HasResult: present=%v err=%v", present, err)
	}
	if result.Status != runstore.StatusFailed {
		t.Errorf("Status = %v, want failed", result.Status)
	}
	if result.Error == nil || result.Error.Code != "REQUEST_INVALID" {
		t.Errorf("Error = %+v, want REQUEST_INVALID", result.Error)
	}
	if result.OutputPath != nil {
		t.Error("OutputPath must be null on the fail path")
	}

	sess, _ := store.GetStatus(runID)
	if sess.State != session.Failed {
		t.Errorf("State = %v, want Failed", sess.State)
	}
}

func TestRun_workspaceNotFound(t *testing.T) {
	r, store, dir := newTestRunner(t)
	missing := filepath.Join(dir, "does-not-exist")

	runID, err := store.CreateRun(newRequest(t, missing))
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	_ = r.Run(context.Background(), runID)

	result, present, _ := store.HasResult(runID)
	if !present || result.Error == nil || result.Error.Code != "WORKSPACE_NOT_FOUND" {
		t.Errorf("result = %+v, want WORKSPACE_NOT_FOUND", result)
	}
}

func TestRun_consumedTwiceYieldsOneFailure(t *testing.T) {
	r, store, _ := newTestRunner(t)
	ws := t.TempDir()

	runID, err := store.CreateRun(newRequest(t, ws))
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	_ = r.Run(context.Background(), runID)
	// Second run attempt on the same id: request.json is already consumed.
	secondErr := r.Run(context.Background(), runID)
	if secondErr == nil {
		t.Fatal("second Run on an already-consumed run_id should report an error")
	}
}

func TestValidateRequest(t *testing.T) {
	base := newRequest(t, "/tmp")

	cases := []struct {
		name    string
		mutate  func(r runstore.Request) runstore.Request
		wantErr bool
	}{
		{"valid", func(r runstore.Request) runstore.Request { return r }, false},
		{"missing task_id", func(r runstore.Request) runstore.Request { r.TaskID = ""; return r }, true},
		{"missing workspace", func(r runstore.Request) runstore.Request { r.WorkspacePath = ""; return r }, true},
		{"missing message", func(r runstore.Request) runstore.Request { r.Message = ""; return r }, true},
		{"bad mode", func(r runstore.Request) runstore.Request { r.Mode = "bogus"; return r }, true},
		{"bad intent", func(r runstore.Request) runstore.Request { r.Intent = "bogus"; return r }, true},
		{"zero timeout", func(r runstore.Request) runstore.Request { r.Constraints.TimeoutMS = 0; return r }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateRequest(tc.mutate(base))
			if (err != nil) != tc.wantErr {
				t.Errorf("validateRequest() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestTruncateSummary(t *testing.T) {
	short := "hello"
	if s, truncated := truncateSummary(short); s != short || truncated {
		t.Errorf("short input: got (%q, %v), want (%q, false)", s, truncated, short)
	}

	long := strings.Repeat("a", SummaryLimit+100)
	s, truncated := truncateSummary(long)
	if !truncated {
		t.Error("expected truncated=true for oversized output")
	}
	if len(s) != SummaryLimit {
		t.Errorf("len(summary) = %d, want %d", len(s), SummaryLimit)
	}
}
