package main

import "testing"

func TestRun_versionFlag(t *testing.T) {
	if code := run([]string{"--version"}); code != 0 {
		t.Errorf("--version exit code = %d, want 0", code)
	}
}

func TestRun_unknownFlagFailsFast(t *testing.T) {
	if code := run([]string{"--not-a-real-flag"}); code != 2 {
		t.Errorf("unknown flag exit code = %d, want 2", code)
	}
}
