//go:build !windows

package supervisor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/silver2dream/agentrun/internal/adapter"
)

func TestRunPTY_zeroExit(t *testing.T) {
	s := New()
	res := s.RunPTY(context.Background(), Request{
		Command: adapter.Command{Path: "echo", Args: []string{"hello"}},
		Timeout: 5 * time.Second,
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if !strings.Contains(string(res.Stdout), "hello") {
		t.Fatalf("expected output to contain hello, got %q", res.Stdout)
	}
	if res.PID <= 0 {
		t.Fatalf("expected a positive pid, got %d", res.PID)
	}
}

func TestRunPTY_timeout(t *testing.T) {
	s := New()
	start := time.Now()
	res := s.RunPTY(context.Background(), Request{
		Command: adapter.Command{Path: "sleep", Args: []string{"5"}},
		Timeout: 100 * time.Millisecond,
	})
	if res.Err == nil {
		t.Fatal("expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Fatalf("expected escalation well under the sleep duration, took %v", elapsed)
	}
}
