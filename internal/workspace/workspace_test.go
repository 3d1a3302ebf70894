package workspace

import (
	"os"
	"path/filepath"
	"testing"

	taskerr "github.com/silver2dream/agentrun/internal/errors"
)

func TestIsDangerousRoot(t *testing.T) {
	dangerous := []string{"/", "/etc", "/etc/passwd", "/usr/bin", "/System/Library"}
	for _, p := range dangerous {
		if !IsDangerousRoot(p) {
			t.Errorf("IsDangerousRoot(%q) = false, want true", p)
		}
	}
	safe := []string{"/var/folders/abc", "/home/user/project", "/tmp/ws"}
	for _, p := range safe {
		if IsDangerousRoot(p) {
			t.Errorf("IsDangerousRoot(%q) = true, want false", p)
		}
	}
}

func TestAdmit_notFound(t *testing.T) {
	_, err := Admit(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	if taskerr.CodeOf(err) != taskerr.WorkspaceNotFound {
		t.Errorf("CodeOf = %v, want WorkspaceNotFound", taskerr.CodeOf(err))
	}
}

func TestAdmit_withinAllowedRoot(t *testing.T) {
	root := t.TempDir()
	ws := filepath.Join(root, "proj")
	if err := os.MkdirAll(ws, 0o755); err != nil {
		t.Fatal(err)
	}

	canonical, err := Admit(ws, []string{root})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if canonical == "" {
		t.Error("Admit should return a non-empty canonical path")
	}
}

func TestAdmit_symlinkEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	_, err := Admit(link, []string{root})
	if taskerr.CodeOf(err) != taskerr.WorkspaceInvalid {
		t.Errorf("CodeOf = %v, want WorkspaceInvalid", taskerr.CodeOf(err))
	}
}

func TestAdmit_outsideAllowedRootsRejected(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()

	_, err := Admit(other, []string{root})
	if taskerr.CodeOf(err) != taskerr.WorkspaceInvalid {
		t.Errorf("CodeOf = %v, want WorkspaceInvalid", taskerr.CodeOf(err))
	}
}
