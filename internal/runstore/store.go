package runstore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	taskerr "github.com/silver2dream/agentrun/internal/errors"
	"github.com/silver2dream/agentrun/internal/session"
)

// ErrNotPending is returned by ConsumeRequest when request.json is already
// gone (either consumed by a prior caller, or never created). The runner
// treats this as REQUEST_INVALID per the spec's step 2.
var ErrNotPending = errors.New("request is not pending")

// ErrCorruptStore marks a getStatus failure caused by an unparseable
// session.json, tagged with the offending run_id.
type ErrCorruptStore struct {
	RunID string
	Cause error
}

func (e *ErrCorruptStore) Error() string {
	return fmt.Sprintf("corrupt store for run %s: %v", e.RunID, e.Cause)
}

func (e *ErrCorruptStore) Unwrap() error { return e.Cause }

// Store is the filesystem-backed run store (C1), rooted at Root ("R" in the
// spec).
type Store struct {
	Root string
}

// New returns a Store rooted at root. The root is created lazily by
// CreateRun, not here.
func New(root string) *Store {
	return &Store{Root: root}
}

// GenerateRunID returns a fresh id matching run-[A-Za-z0-9_-]{12,}.
func GenerateRunID() string {
	var b [10]byte
	_, _ = rand.Read(b[:])
	return "run-" + hex.EncodeToString(b[:])
}

// runDir resolves runID against Root and enforces I6: the result must
// remain strictly inside Root after resolution. An untrusted runID (e.g.
// containing "../") is rejected as a PathEscape.
func (s *Store) runDir(runID string) (string, error) {
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", taskerr.Wrap(taskerr.RequestInvalid, "resolve runs root", err)
	}
	dir := filepath.Join(root, runID)
	dir = filepath.Clean(dir)

	if dir == root || !strings.HasPrefix(dir, root+string(filepath.Separator)) {
		return "", taskerr.New(taskerr.RequestInvalid, "run_id escapes runs root: "+runID)
	}
	return dir, nil
}

func (s *Store) requestPath(dir string) string           { return filepath.Join(dir, "request.json") }
func (s *Store) processingPath(dir string) string         { return filepath.Join(dir, "request.processing.json") }
func (s *Store) sessionPath(dir string) string            { return filepath.Join(dir, "session.json") }
func (s *Store) resultPath(dir string) string             { return filepath.Join(dir, "result.json") }
func (s *Store) outputPath(dir string) string             { return filepath.Join(dir, "output.txt") }
func (s *Store) sessionLockPath(dir string) string        { return filepath.Join(dir, ".session.lock") }
func (s *Store) resultLockPath(dir string) string         { return filepath.Join(dir, ".result.lock") }

// OutputPath returns the absolute path output.txt would be written to for
// runID, without checking existence. Used by the runner to populate
// result.output_path.
func (s *Store) OutputPath(runID string) (string, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return "", err
	}
	return s.outputPath(dir), nil
}

// CreateRun generates a run_id, creates the run directory and its reserved
// subpaths, and atomically writes request.json and an initial session.json
// in state created.
func (s *Store) CreateRun(req Request) (string, error) {
	runID := GenerateRunID()
	dir, err := s.runDir(runID)
	if err != nil {
		return "", err
	}

	for _, sub := range []string{"context", "logs", "artifacts"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", taskerr.Wrap(taskerr.OutputWriteFailed, "create run subdirectory", err)
		}
	}

	reqBytes, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", taskerr.Wrap(taskerr.RequestInvalid, "marshal request", err)
	}
	if err := writeFileAtomic(s.requestPath(dir), reqBytes, 0o644); err != nil {
		return "", err
	}

	sess := session.New(runID, req.Engine)
	sessBytes, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return "", taskerr.Wrap(taskerr.RequestInvalid, "marshal session", err)
	}
	if err := writeFileAtomic(s.sessionPath(dir), sessBytes, 0o644); err != nil {
		return "", err
	}

	return runID, nil
}

// GetStatus reads session.json for runID. A missing or unparseable
// session.json is fatal here (unlike ListRuns, which skips bad entries).
func (s *Store) GetStatus(runID string) (session.Session, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return session.Session{}, err
	}

	data, err := os.ReadFile(s.sessionPath(dir))
	if err != nil {
		return session.Session{}, &ErrCorruptStore{RunID: runID, Cause: err}
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return session.Session{}, &ErrCorruptStore{RunID: runID, Cause: err}
	}
	return sess, nil
}

// ListRuns enumerates immediate subdirectories of Root, skipping any whose
// session.json is missing, empty, or unparseable. A single bad entry never
// aborts the enumeration.
func (s *Store) ListRuns() ([]session.Session, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, taskerr.Wrap(taskerr.RequestInvalid, "read runs root", err)
	}

	var out []session.Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sessPath := filepath.Join(s.Root, e.Name(), "session.json")
		data, err := os.ReadFile(sessPath)
		if err != nil || len(data) == 0 {
			continue
		}
		var sess session.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		out = append(out, sess)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ConsumeRequest atomically renames request.json to request.processing.json
// and parses the result. A second call on the same run observes
// ErrNotPending.
func (s *Store) ConsumeRequest(runID string) (Request, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return Request{}, err
	}

	reqPath := s.requestPath(dir)
	procPath := s.processingPath(dir)

	if _, err := os.Stat(reqPath); err != nil {
		if os.IsNotExist(err) {
			return Request{}, ErrNotPending
		}
		return Request{}, taskerr.Wrap(taskerr.RequestInvalid, "stat request.json", err)
	}

	if err := os.Rename(reqPath, procPath); err != nil {
		if os.IsNotExist(err) {
			return Request{}, ErrNotPending
		}
		return Request{}, taskerr.Wrap(taskerr.RequestInvalid, "consume request", err)
	}

	data, err := os.ReadFile(procPath)
	if err != nil {
		return Request{}, taskerr.Wrap(taskerr.RequestInvalid, "read consumed request", err)
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		// The rename already happened; the store is left in a recoverable
		// state (request.processing.json exists) per the spec's note.
		return Request{}, taskerr.Wrap(taskerr.RequestInvalid, "parse consumed request", err)
	}

	return req.WithDefaults(), nil
}

// UpdateSession performs a locked read-modify-write of session.json: it
// reads the current session, applies mutate, stamps last_active_at, and
// atomically rewrites the file. The lock is released on every exit path.
func (s *Store) UpdateSession(runID string, mutate func(session.Session) (session.Session, error)) (session.Session, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return session.Session{}, err
	}

	lock := newFileLock(s.sessionLockPath(dir))
	var result session.Session
	err = withLock(lock, func() error {
		data, rerr := os.ReadFile(s.sessionPath(dir))
		if rerr != nil {
			return &ErrCorruptStore{RunID: runID, Cause: rerr}
		}
		var current session.Session
		if rerr := json.Unmarshal(data, &current); rerr != nil {
			return &ErrCorruptStore{RunID: runID, Cause: rerr}
		}

		next, merr := mutate(current)
		if merr != nil {
			return merr
		}
		next.LastActiveAt = time.Now().UTC()

		out, merr := json.MarshalIndent(next, "", "  ")
		if merr != nil {
			return taskerr.Wrap(taskerr.RequestInvalid, "marshal session", merr)
		}
		if merr := writeFileAtomic(s.sessionPath(dir), out, 0o644); merr != nil {
			return merr
		}
		result = next
		return nil
	})
	return result, err
}

// WriteResult atomically writes result.json under .result.lock.
func (s *Store) WriteResult(runID string, result Result) error {
	dir, err := s.runDir(runID)
	if err != nil {
		return err
	}
	result.RunID = runID

	lock := newFileLock(s.resultLockPath(dir))
	return withLock(lock, func() error {
		data, merr := json.MarshalIndent(result, "", "  ")
		if merr != nil {
			return taskerr.Wrap(taskerr.OutputWriteFailed, "marshal result", merr)
		}
		return writeFileAtomic(s.resultPath(dir), data, 0o644)
	})
}

// HasResult reports whether result.json exists for runID, and if so,
// attempts to parse it. A parse failure is reported via err with present=true
// (present-but-unparseable), matching the reconciler's need to distinguish
// "missing" from "present but corrupt".
func (s *Store) HasResult(runID string) (result Result, present bool, err error) {
	dir, derr := s.runDir(runID)
	if derr != nil {
		return Result{}, false, derr
	}
	data, rerr := os.ReadFile(s.resultPath(dir))
	if rerr != nil {
		if os.IsNotExist(rerr) {
			return Result{}, false, nil
		}
		return Result{}, true, rerr
	}
	if len(data) == 0 {
		return Result{}, true, fmt.Errorf("empty result.json")
	}
	if uerr := json.Unmarshal(data, &result); uerr != nil {
		return Result{}, true, uerr
	}
	return result, true, nil
}

// WriteOutputFile writes output.txt. Per the spec, writers may choose a
// non-atomic write here; readers are advised to consult result.json as the
// completion signal rather than output.txt's mere existence.
func (s *Store) WriteOutputFile(runID string, data []byte) error {
	dir, err := s.runDir(runID)
	if err != nil {
		return err
	}
	if werr := os.WriteFile(s.outputPath(dir), data, 0o644); werr != nil {
		return taskerr.Wrap(taskerr.OutputWriteFailed, "write output.txt", werr)
	}
	return nil
}

// RunLogsDir returns the run's logs/ directory path, or "" if it doesn't
// exist, for mirroring reconciliation.log entries.
func (s *Store) RunLogsDir(runID string) string {
	dir, err := s.runDir(runID)
	if err != nil {
		return ""
	}
	logsDir := filepath.Join(dir, "logs")
	if fi, err := os.Stat(logsDir); err == nil && fi.IsDir() {
		return logsDir
	}
	return ""
}

// AppendReconciliationLog appends a single line to R/reconciliation.log.
func (s *Store) AppendReconciliationLog(line string) error {
	f, err := os.OpenFile(filepath.Join(s.Root, "reconciliation.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}
