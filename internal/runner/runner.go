// Package runner implements the end-to-end run executor (C5): consume a
// pending request, admit its workspace, invoke the resolved engine adapter
// under the supervisor's bounds, and write a result.json on every path — the
// success path, the classified-failure path, and the top-level
// convert-any-panic-to-ENGINE_CRASH catch-all.
package runner

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/silver2dream/agentrun/internal/adapter"
	taskerr "github.com/silver2dream/agentrun/internal/errors"
	"github.com/silver2dream/agentrun/internal/obslog"
	"github.com/silver2dream/agentrun/internal/runstore"
	"github.com/silver2dream/agentrun/internal/session"
	"github.com/silver2dream/agentrun/internal/supervisor"
	"github.com/silver2dream/agentrun/internal/workspace"
)

// SummaryLimit is the fixed cap on result.json's summary field (runner step
// 13).
const SummaryLimit = 4000

// forceStopTimeout is cancellation's default grace window (§5 Cancellation)
// when a request doesn't carry a validated positive force_timeout_ms.
const forceStopTimeout = 5 * time.Second

// Runner executes C5 against a Store using adapters resolved from a
// Registry.
type Runner struct {
	Store      *runstore.Store
	Registry   *adapter.Registry
	Supervisor *supervisor.Supervisor
	Log        *slog.Logger
}

// New returns a Runner.
func New(store *runstore.Store, registry *adapter.Registry, log *slog.Logger) *Runner {
	return &Runner{
		Store:      store,
		Registry:   registry,
		Supervisor: supervisor.New(),
		Log:        log,
	}
}

// Run executes the full C5 algorithm for runID. Every failure path ends with
// a written result.json, matching step 15's "result.json MUST be written on
// every path" guarantee. The returned error reports that failure as well and
// is purely diagnostic, for the daemon's own logging; a recovered panic
// writes its result.json but returns nil.
func (r *Runner) Run(ctx context.Context, runID string) (err error) {
	startTime := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.failAndWrite(runID, startTime, taskerr.New(taskerr.EngineCrash, panicMessage(rec)))
		}
	}()

	// Step 2: consumeRequest.
	req, cerr := r.Store.ConsumeRequest(runID)
	if cerr != nil {
		r.failAndWrite(runID, startTime, taskerr.Wrap(taskerr.RequestInvalid, "request is not pending", cerr))
		return cerr
	}

	// Step 3: re-validate against the schema.
	if verr := validateRequest(req); verr != nil {
		r.failAndWrite(runID, startTime, verr)
		return verr
	}

	// Step 4-5: workspace admission.
	canonicalWorkspace, werr := workspace.Admit(req.WorkspacePath, req.AllowedRoots)
	if werr != nil {
		r.failAndWrite(runID, startTime, werr)
		return werr
	}

	// Step 6: resume requires a session_id.
	if req.Mode == runstore.ModeResume && (req.SessionID == nil || *req.SessionID == "") {
		verr := taskerr.New(taskerr.RequestInvalid, "mode=resume requires a non-empty session_id")
		r.failAndWrite(runID, startTime, verr)
		return verr
	}

	// Step 7: engine selection.
	eng, aerr := r.Registry.Get(req.Engine)
	if aerr != nil {
		r.failAndWrite(runID, startTime, aerr)
		return aerr
	}

	// Step 8: transition to running.
	_, serr := r.Store.UpdateSession(runID, func(s session.Session) (session.Session, error) {
		next, err := s.Apply(session.Running)
		if err != nil {
			return s, err
		}
		if req.Mode == runstore.ModeResume {
			next.SessionID = req.SessionID
		}
		return next, nil
	})
	if serr != nil {
		r.failAndWrite(runID, startTime, taskerr.Wrap(taskerr.EngineCrash, "transition to running", serr))
		return serr
	}

	// Step 9: invoke the adapter, catching any panic as ENGINE_CRASH.
	resp, ierr := r.invokeEngine(ctx, eng, req, canonicalWorkspace)
	if ierr != nil {
		r.failAndWrite(runID, startTime, ierr)
		return ierr
	}

	// Step 10: capture pid/session_id.
	if resp.PID > 0 {
		if _, serr := r.Store.UpdateSession(runID, func(s session.Session) (session.Session, error) {
			pid := resp.PID
			s.PID = &pid
			if resp.SessionID != nil {
				s.SessionID = resp.SessionID
			}
			return s, nil
		}); serr != nil {
			r.Log.Warn("failed to persist pid/session_id", obslog.RunIDKey, runID, "error", serr)
		}
	}

	// Step 11: error carried in the response takes the fail path.
	if resp.Error != nil {
		ferr := taskerr.New(taskerr.Code(resp.Error.Code), resp.Error.Message)
		r.failAndWrite(runID, startTime, ferr)
		return ferr
	}

	// Step 12: success path.
	if werr := r.Store.WriteOutputFile(runID, []byte(resp.Output)); werr != nil {
		oerr := taskerr.Wrap(taskerr.OutputWriteFailed, "write output.txt", werr)
		r.failAndWrite(runID, startTime, oerr)
		return oerr
	}

	if _, serr := r.Store.UpdateSession(runID, func(s session.Session) (session.Session, error) {
		return s.Apply(session.Completed)
	}); serr != nil {
		r.Log.Warn("failed to transition to completed", obslog.RunIDKey, runID, "error", serr)
	}

	// Step 13: summary, files_changed, result.json.
	summary, truncated := truncateSummary(resp.Output)
	filesChanged := computeFilesChanged(canonicalWorkspace)
	outputPath, _ := r.Store.OutputPath(runID)

	result := runstore.Result{
		RunID:            runID,
		Status:           runstore.StatusCompleted,
		Summary:          summary,
		SummaryTruncated: truncated,
		OutputPath:       &outputPath,
		SessionID:        resp.SessionID,
		Artifacts:        []string{},
		DurationMS:       time.Since(startTime).Milliseconds(),
		TokenUsage:       resp.TokenUsage,
		FilesChanged:     filesChanged,
	}
	if werr := r.Store.WriteResult(runID, result); werr != nil {
		r.Log.Error("failed to write result.json on success path", obslog.RunIDKey, runID, "error", werr)
	}
	return nil
}

// invokeEngine runs BuildStart/BuildSend, executes the resulting command
// under the supervisor, and hands a zero-exit capture to the adapter's
// Parse. Any panic raised by adapter code is recovered and converted to
// ENGINE_CRASH, satisfying step 9's "any exception ... is caught".
func (r *Runner) invokeEngine(ctx context.Context, eng adapter.Adapter, req runstore.Request, workspaceDir string) (resp adapter.Response, terr *taskerr.TaskError) {
	defer func() {
		if rec := recover(); rec != nil {
			terr = taskerr.New(taskerr.EngineCrash, panicMessage(rec))
		}
	}()

	var cmd adapter.Command
	var berr error
	if req.Mode == runstore.ModeResume {
		cmd, berr = eng.BuildSend(*req.SessionID, req.Message, adapter.SendOptions{
			TimeoutMS: req.Constraints.TimeoutMS,
			Cwd:       workspaceDir,
		})
	} else {
		cmd, berr = eng.BuildStart(req)
	}
	if berr != nil {
		return adapter.Response{}, taskerr.Wrap(taskerr.EngineCrash, "build command", berr)
	}

	timeout := time.Duration(req.Constraints.TimeoutMS * float64(time.Millisecond))
	var needsPTY bool
	if ptyReq, ok := eng.(adapter.PTYRequirer); ok {
		needsPTY = ptyReq.RequiresPTY()
	}

	sreq := supervisor.Request{Command: cmd, Dir: workspaceDir, Timeout: timeout}
	var runRes supervisor.RunResult
	if needsPTY {
		runRes = r.Supervisor.RunPTY(ctx, sreq)
	} else {
		runRes = r.Supervisor.Run(ctx, sreq)
	}

	if runRes.Err != nil {
		runRes.Err.Message = strings.TrimSpace(runRes.Err.Message)
		return adapter.Response{PID: runRes.PID}, runRes.Err
	}

	parsed := eng.Parse(runRes.Stdout, runRes.Stderr, runRes.ExitCode)
	parsed.PID = runRes.PID
	return parsed, nil
}

// validateRequest re-checks the parsed request against the schema (runner
// step 3), beyond what json.Unmarshal already enforces structurally.
func validateRequest(req runstore.Request) *taskerr.TaskError {
	if req.TaskID == "" {
		return taskerr.New(taskerr.RequestInvalid, "task_id is required")
	}
	if req.WorkspacePath == "" {
		return taskerr.New(taskerr.RequestInvalid, "workspace_path is required")
	}
	if req.Message == "" {
		return taskerr.New(taskerr.RequestInvalid, "message is required")
	}
	switch req.Intent {
	case runstore.IntentCoding, runstore.IntentRefactor, runstore.IntentDebug, runstore.IntentOps:
	default:
		return taskerr.New(taskerr.RequestInvalid, "intent must be one of coding|refactor|debug|ops")
	}
	if req.Mode != runstore.ModeNew && req.Mode != runstore.ModeResume {
		return taskerr.New(taskerr.RequestInvalid, "mode must be \"new\" or \"resume\"")
	}
	if req.Constraints.TimeoutMS <= 0 {
		return taskerr.New(taskerr.RequestInvalid, "constraints.timeout_ms must be a positive number")
	}
	return nil
}

// truncateSummary implements runner step 13's summary computation.
func truncateSummary(output string) (summary string, truncated bool) {
	runes := []rune(output)
	if len(runes) <= SummaryLimit {
		return output, false
	}
	return string(runes[:SummaryLimit]), true
}

// computeFilesChanged unions `git diff --name-only HEAD` and
// `git ls-files --others --exclude-standard` in workspaceDir, excluding
// entries under .runs/. Either command failing (including a repository with
// no commits) yields nil, matching step 13's "files_changed = null" rule.
func computeFilesChanged(workspaceDir string) []string {
	diffCmd := exec.Command("git", "diff", "--name-only", "HEAD")
	diffCmd.Dir = workspaceDir
	diffOut, derr := diffCmd.Output()
	if derr != nil {
		return nil
	}

	lsCmd := exec.Command("git", "ls-files", "--others", "--exclude-standard")
	lsCmd.Dir = workspaceDir
	lsOut, lerr := lsCmd.Output()
	if lerr != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, line := range append(splitLines(diffOut), splitLines(lsOut)...) {
		if line == "" || strings.HasPrefix(line, ".runs/") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			out = append(out, line)
		}
	}
	return out
}

func splitLines(b []byte) []string {
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

// failAndWrite implements runner steps 14/15: transition to failed (if not
// already terminal, promoting through running if still created), and write
// result.json unconditionally.
func (r *Runner) failAndWrite(runID string, startTime time.Time, terr *taskerr.TaskError) {
	_, _ = r.Store.UpdateSession(runID, func(s session.Session) (session.Session, error) {
		if s.State.Terminal() {
			return s, nil
		}
		if s.State == session.Created {
			if next, err := s.Apply(session.Running); err == nil {
				s = next
			}
		}
		return s.Apply(session.Failed)
	})

	result := runstore.Result{
		RunID:            runID,
		Status:           runstore.StatusFailed,
		Summary:          terr.Message,
		SummaryTruncated: false,
		OutputPath:       nil,
		Artifacts:        []string{},
		DurationMS:       time.Since(startTime).Milliseconds(),
		FilesChanged:     nil,
		Error: &runstore.ResultError{
			Code:      string(terr.Code),
			Message:   terr.Message,
			Retryable: terr.Retryable(),
		},
	}
	if werr := r.Store.WriteResult(runID, result); werr != nil && r.Log != nil {
		r.Log.Error("failed to write result.json on fail path", obslog.RunIDKey, runID, "error", werr)
	}
}

func panicMessage(rec interface{}) string {
	if err, ok := rec.(error); ok {
		return "panic: " + err.Error()
	}
	return "panic: " + toString(rec)
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "unrecognized panic value"
}

// ForceStop implements §5's cancellation algorithm: transition running ->
// stopping, SIGTERM the session pid, wait forceTimeout, SIGKILL if still
// alive, then transition stopping -> completed with a synthetic result.
// forceTimeout MUST be a validated positive duration; a non-positive value
// falls back to forceStopTimeout to avoid a NaN-induced infinite wait.
func (r *Runner) ForceStop(runID string, forceTimeout time.Duration) error {
	if forceTimeout <= 0 {
		forceTimeout = forceStopTimeout
	}

	sess, serr := r.Store.UpdateSession(runID, func(s session.Session) (session.Session, error) {
		return s.Apply(session.Stopping)
	})
	if serr != nil {
		return serr
	}

	if sess.PID != nil && *sess.PID > 0 {
		supervisor.SignalStop(*sess.PID, forceTimeout)
	}

	_, uerr := r.Store.UpdateSession(runID, func(s session.Session) (session.Session, error) {
		return s.Apply(session.Completed)
	})
	if uerr != nil {
		return uerr
	}

	outputPath, _ := r.Store.OutputPath(runID)
	result := runstore.Result{
		RunID:            runID,
		Status:           runstore.StatusCompleted,
		Summary:          "Task force-stopped by user",
		SummaryTruncated: false,
		OutputPath:       &outputPath,
		SessionID:        sess.SessionID,
		Artifacts:        []string{},
		DurationMS:       0,
		FilesChanged:     nil,
	}
	return r.Store.WriteResult(runID, result)
}
