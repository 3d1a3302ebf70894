package reconciler

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/silver2dream/agentrun/internal/runstore"
	"github.com/silver2dream/agentrun/internal/session"
)

func newTestStore(t *testing.T) *runstore.Store {
	t.Helper()
	return runstore.New(t.TempDir())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func createRunningRun(t *testing.T, store *runstore.Store, pid *int) string {
	t.Helper()
	runID, err := store.CreateRun(runstore.Request{
		TaskID: "t1", Intent: runstore.IntentCoding, WorkspacePath: t.TempDir(), Message: "hi",
		Engine: "codex", Mode: runstore.ModeNew,
		Constraints: runstore.Constraints{TimeoutMS: 1000},
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := store.ConsumeRequest(runID); err != nil {
		t.Fatalf("ConsumeRequest: %v", err)
	}
	if _, err := store.UpdateSession(runID, func(s session.Session) (session.Session, error) {
		next, err := s.Apply(session.Running)
		if err != nil {
			return s, err
		}
		next.PID = pid
		return next, nil
	}); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	return runID
}

func TestReconciler_leavesLiveProcessAlone(t *testing.T) {
	store := newTestStore(t)

	// Spawn a real, slow-dying process so IsAlive reports true.
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn sleep: %v", err)
	}
	defer cmd.Process.Kill()
	pid := cmd.Process.Pid

	runID := createRunningRun(t, store, &pid)

	rec := New(store, discardLogger())
	if err := rec.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sess, err := store.GetStatus(runID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if sess.State != session.Running {
		t.Errorf("State = %v, want Running (left alone)", sess.State)
	}
}

func TestReconciler_deadProcessNoResult_marksRunnerCrashRecovery(t *testing.T) {
	store := newTestStore(t)
	deadPID := 999999
	runID := createRunningRun(t, store, &deadPID)

	rec := New(store, discardLogger())
	if err := rec.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sess, err := store.GetStatus(runID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if sess.State != session.Failed {
		t.Errorf("State = %v, want Failed", sess.State)
	}

	result, present, err := store.HasResult(runID)
	if err != nil || !present {
		t.Fatalf("HasResult: present=%v err=%v", present, err)
	}
	if result.Error == nil || result.Error.Code != "RUNNER_CRASH_RECOVERY" {
		t.Errorf("Error = %+v, want RUNNER_CRASH_RECOVERY", result.Error)
	}
	if !result.Error.Retryable {
		t.Error("RUNNER_CRASH_RECOVERY must be retryable")
	}
}

func TestReconciler_deadProcessWithCompletedResult_marksCompleted(t *testing.T) {
	store := newTestStore(t)
	deadPID := 999998
	runID := createRunningRun(t, store, &deadPID)

	if err := store.WriteResult(runID, runstore.Result{
		Status: runstore.StatusCompleted, Summary: "done", Artifacts: []string{},
	}); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}

	rec := New(store, discardLogger())
	if err := rec.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sess, err := store.GetStatus(runID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if sess.State != session.Completed {
		t.Errorf("State = %v, want Completed", sess.State)
	}
}

func TestReconciler_deadProcessWithEmptyResult_overwritesWithCrashRecovery(t *testing.T) {
	store := newTestStore(t)
	deadPID := 999996
	runID := createRunningRun(t, store, &deadPID)

	// Simulate a runner that crashed mid-write: a zero-length result.json.
	resultFile := filepath.Join(store.Root, runID, "result.json")
	if err := os.WriteFile(resultFile, nil, 0o644); err != nil {
		t.Fatalf("write empty result.json: %v", err)
	}

	rec := New(store, discardLogger())
	if err := rec.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sess, err := store.GetStatus(runID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if sess.State != session.Failed {
		t.Errorf("State = %v, want Failed", sess.State)
	}

	result, present, err := store.HasResult(runID)
	if err != nil || !present {
		t.Fatalf("HasResult: present=%v err=%v", present, err)
	}
	if result.Error == nil || result.Error.Code != "RUNNER_CRASH_RECOVERY" {
		t.Errorf("Error = %+v, want RUNNER_CRASH_RECOVERY (empty result.json must be overwritten, not left alone)", result.Error)
	}
}

func TestReconciler_idempotentAcrossRepeatedCalls(t *testing.T) {
	store := newTestStore(t)
	deadPID := 999997
	runID := createRunningRun(t, store, &deadPID)

	rec := New(store, discardLogger())
	if err := rec.Run(); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first, _, _ := store.HasResult(runID)

	if err := rec.Run(); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	second, _, _ := store.HasResult(runID)

	if first.Status != second.Status || first.Error.Code != second.Error.Code {
		t.Errorf("result changed across repeated reconciliation: %+v vs %+v", first, second)
	}
}
