package supervisor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/silver2dream/agentrun/internal/adapter"
	taskerr "github.com/silver2dream/agentrun/internal/errors"
)

func TestRun_zeroExit(t *testing.T) {
	sup := New()
	res := sup.Run(context.Background(), Request{
		Command: adapter.Command{Path: "echo", Args: []string{"hello"}},
		Timeout: 5 * time.Second,
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if strings.TrimSpace(string(res.Stdout)) != "hello" {
		t.Errorf("stdout = %q, want hello", res.Stdout)
	}
}

func TestRun_nonZeroExit(t *testing.T) {
	sup := New()
	res := sup.Run(context.Background(), Request{
		Command: adapter.Command{Path: "sh", Args: []string{"-c", "echo oops 1>&2; exit 3"}},
		Timeout: 5 * time.Second,
	})
	if res.Err == nil {
		t.Fatal("expected an error on non-zero exit")
	}
	if res.Err.Code != taskerr.EngineCrash {
		t.Errorf("Code = %v, want EngineCrash", res.Err.Code)
	}
	if !strings.Contains(res.Err.Message, "oops") {
		t.Errorf("Message = %q, want it to surface stderr", res.Err.Message)
	}
}

func TestRun_timeout(t *testing.T) {
	sup := New()
	start := time.Now()
	res := sup.Run(context.Background(), Request{
		Command: adapter.Command{Path: "sleep", Args: []string{"5"}},
		Timeout: 100 * time.Millisecond,
	})
	if res.Err == nil || res.Err.Code != taskerr.EngineTimeout {
		t.Fatalf("expected EngineTimeout, got %v", res.Err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("took %v, escalation to SIGKILL should cut this well under the sleep duration", elapsed)
	}
}

func TestRun_spawnFailure(t *testing.T) {
	sup := New()
	res := sup.Run(context.Background(), Request{
		Command: adapter.Command{Path: "definitely-not-a-real-binary-xyz"},
		Timeout: time.Second,
	})
	if res.Err == nil || res.Err.Code != taskerr.EngineCrash {
		t.Fatalf("expected EngineCrash on spawn failure, got %v", res.Err)
	}
}

func TestCapturer_boundaryAtExactCap(t *testing.T) {
	c := &capturer{limit: 5}
	c.append(&c.stdout, []byte("12345"))
	if c.overflowed {
		t.Error("exactly filling the cap must not overflow")
	}
	c.append(&c.stdout, []byte("6"))
	if !c.overflowed {
		t.Error("a byte past the cap must overflow")
	}
	if got := c.snapshot(&c.stdout); string(got) != "12345" {
		t.Errorf("snapshot = %q, want exactly the capped prefix", got)
	}
}
