// Package session implements the run's session state machine: the legal
// transition graph a run's session.json walks through from creation to a
// terminal state, and the record written to disk at each transition.
package session

import (
	"fmt"
	"time"
)

// State is one node of the session state machine.
type State string

const (
	Created   State = "created"
	Running   State = "running"
	Stopping  State = "stopping"
	Completed State = "completed"
	Failed    State = "failed"
)

// Terminal reports whether s is a state the machine cannot leave.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// legalTransitions enumerates every edge the machine may take. A transition
// not listed here is rejected by Validate/Apply.
var legalTransitions = map[State]map[State]bool{
	Created:  {Running: true},
	Running:  {Stopping: true, Completed: true, Failed: true},
	Stopping: {Completed: true, Failed: true},
	// Completed and Failed are terminal: no outbound edges, except via the
	// explicit ResetForResume escape hatch below.
}

// Session is the in-memory and on-disk (session.json) representation of a
// run's session state: the Session entity fields, plus a resume_count
// that ResetForResume increments.
type Session struct {
	RunID        string    `json:"run_id"`
	Engine       string    `json:"engine"`
	SessionID    *string   `json:"session_id"`
	State        State     `json:"state"`
	PID          *int      `json:"pid"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	ResumeCount  int       `json:"resume_count,omitempty"`
}

// New returns a fresh session.json payload in the Created state for runID.
func New(runID, engine string) Session {
	now := time.Now().UTC()
	return Session{
		RunID:        runID,
		Engine:       engine,
		State:        Created,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// TransitionError reports an attempted illegal state transition.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal session transition %s -> %s", e.From, e.To)
}

// Validate reports whether from -> to is a legal edge in the transition
// graph. Self-transitions (from == to) are always legal: they're how a
// long-running engine keeps session.json's last_active_at fresh without
// changing state.
func Validate(from, to State) error {
	if from == to {
		return nil
	}
	if legalTransitions[from][to] {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

// Apply validates and performs the transition, bumping LastActiveAt. It
// does not persist anything; callers write the returned Session via the run
// store, which stamps last_active_at again as part of its own
// read-modify-write cycle.
func (s Session) Apply(to State) (Session, error) {
	if err := Validate(s.State, to); err != nil {
		return s, err
	}
	s.State = to
	s.LastActiveAt = time.Now().UTC()
	return s, nil
}

// ResetForResume is the escape hatch for resuming a run whose engine
// crashed: it walks a terminal session back to Created, clearing both pid
// and session_id so neither leaks into the next attempt, and bumping
// ResumeCount.
//
// This is the one edge the legal-transition table above intentionally
// doesn't encode, since it's not part of a single run's normal lifecycle
// but a deliberate operator/runner decision to start a new attempt. Admitted
// only from a terminal state; callers must check Terminal() first.
func (s Session) ResetForResume() Session {
	return Session{
		RunID:        s.RunID,
		Engine:       s.Engine,
		SessionID:    nil,
		State:        Created,
		PID:          nil,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: time.Now().UTC(),
		ResumeCount:  s.ResumeCount + 1,
	}
}
