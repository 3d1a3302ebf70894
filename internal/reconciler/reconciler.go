// Package reconciler implements the crash-recovery pass (C6): for every run
// left in state running whose process is no longer alive, reclassify it to
// completed or failed by consulting result.json, or to failed with
// RUNNER_CRASH_RECOVERY if no usable result.json exists. Runs invoked on
// daemon start and between polls; every action is idempotent and logged to
// reconciliation.log.
package reconciler

import (
	"fmt"
	"log/slog"
	"time"

	taskerr "github.com/silver2dream/agentrun/internal/errors"
	"github.com/silver2dream/agentrun/internal/procutil"
	"github.com/silver2dream/agentrun/internal/runstore"
	"github.com/silver2dream/agentrun/internal/session"
)

// Action is the bracketed tag recorded in a reconciliation.log line.
type Action string

const (
	ActionLeftAlone       Action = "LEFT_ALONE"
	ActionMarkedCompleted Action = "MARKED_COMPLETED"
	ActionMarkedFailed    Action = "MARKED_FAILED"
	ActionCrashRecovered  Action = "CRASH_RECOVERED"
)

// Reconciler runs one reconciliation pass over a Store.
type Reconciler struct {
	Store *runstore.Store
	Log   *slog.Logger
}

// New returns a Reconciler over store.
func New(store *runstore.Store, log *slog.Logger) *Reconciler {
	return &Reconciler{Store: store, Log: log}
}

// Run examines every listed run in state running and reclassifies any whose
// process is no longer alive. It is safe to call repeatedly: a run already
// reconciled to a terminal state is left alone on subsequent calls (P8).
func (r *Reconciler) Run() error {
	runs, err := r.Store.ListRuns()
	if err != nil {
		return err
	}

	for _, sess := range runs {
		if sess.State != session.Running {
			continue
		}
		r.reconcileOne(sess)
	}
	return nil
}

func (r *Reconciler) reconcileOne(sess session.Session) {
	if sess.PID != nil && procutil.IsAlive(*sess.PID, 0) {
		r.log(ActionLeftAlone, sess.RunID, "pid alive")
		return
	}

	result, present, err := r.Store.HasResult(sess.RunID)
	if present && err == nil {
		r.reconcileWithResult(sess, result)
		return
	}

	// Missing, empty, or unparseable result.json.
	r.reconcileCrashRecovery(sess, err)
}

func (r *Reconciler) reconcileWithResult(sess session.Session, result runstore.Result) {
	var to session.State
	var action Action
	switch result.Status {
	case runstore.StatusCompleted:
		to, action = session.Completed, ActionMarkedCompleted
	case runstore.StatusFailed:
		to, action = session.Failed, ActionMarkedFailed
	default:
		r.reconcileCrashRecovery(sess, fmt.Errorf("unrecognized result status %q", result.Status))
		return
	}

	if sess.State == to {
		r.log(action, sess.RunID, "already reconciled")
		return
	}

	if _, err := r.Store.UpdateSession(sess.RunID, func(s session.Session) (session.Session, error) {
		return s.Apply(to)
	}); err != nil {
		r.logErr(sess.RunID, "transition to match result.json status", err)
		return
	}
	r.log(action, sess.RunID, fmt.Sprintf("result.json status=%s", result.Status))
}

func (r *Reconciler) reconcileCrashRecovery(sess session.Session, cause error) {
	if _, err := r.Store.UpdateSession(sess.RunID, func(s session.Session) (session.Session, error) {
		if s.State == session.Failed {
			return s, nil
		}
		return s.Apply(session.Failed)
	}); err != nil {
		r.logErr(sess.RunID, "transition to failed for crash recovery", err)
		return
	}

	terr := taskerr.New(taskerr.RunnerCrashRecover, "runner crashed without leaving a usable result.json")
	result := runstore.Result{
		RunID:            sess.RunID,
		Status:           runstore.StatusFailed,
		Summary:          terr.Message,
		SummaryTruncated: false,
		OutputPath:       nil,
		SessionID:        sess.SessionID,
		Artifacts:        []string{},
		DurationMS:       0,
		FilesChanged:     nil,
		Error: &runstore.ResultError{
			Code:      string(terr.Code),
			Message:   terr.Message,
			Retryable: terr.Retryable(),
		},
	}

	// Idempotence (P8): don't overwrite a well-formed result.json that may
	// have appeared between HasResult and here under concurrent access. A
	// missing, empty, or unparseable result.json (err != nil, or present ==
	// false) still needs the crash-recovery write.
	if _, present, rerr := r.Store.HasResult(sess.RunID); !present || rerr != nil {
		if err := r.Store.WriteResult(sess.RunID, result); err != nil {
			r.logErr(sess.RunID, "write crash-recovery result.json", err)
			return
		}
	}

	detail := "no result.json"
	if cause != nil {
		detail = cause.Error()
	}
	r.log(ActionCrashRecovered, sess.RunID, detail)
}

func (r *Reconciler) log(action Action, runID, detail string) {
	line := formatLine(action, runID, detail)
	if err := r.Store.AppendReconciliationLog(line); err != nil && r.Log != nil {
		r.Log.Warn("failed to append to reconciliation.log", "error", err)
	}
	if dir := r.Store.RunLogsDir(runID); dir != "" {
		_ = appendToRunLog(dir, line)
	}
}

func (r *Reconciler) logErr(runID, context string, err error) {
	if r.Log != nil {
		r.Log.Error("reconciliation step failed", "run_id", runID, "context", context, "error", err)
	}
}

// formatLine builds one reconciliation.log entry: ISO-8601 timestamp,
// bracketed action tag, run id, free-text detail.
func formatLine(action Action, runID, detail string) string {
	return fmt.Sprintf("%s [%s] %s %s", time.Now().UTC().Format(time.RFC3339), action, runID, detail)
}
