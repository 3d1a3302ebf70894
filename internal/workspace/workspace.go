// Package workspace implements the runner's workspace admission check: a
// symlink-safe resolution of a request's workspace_path against its
// allowed_roots and the built-in dangerous-root deny-list.
package workspace

import (
	"os"
	"path/filepath"
	"strings"

	taskerr "github.com/silver2dream/agentrun/internal/errors"
)

// dangerousRoots MUST be rejected both as an exact match and as a
// prefix-with-separator. /var is intentionally not included: the macOS
// user temp directory lives under /var/folders/... and must stay usable.
var dangerousRoots = []string{
	"/", "/etc", "/usr", "/System", "/bin", "/sbin",
	"/var/run", "/var/root", "/var/db", "/var/spool",
}

// IsDangerousRoot reports whether path is, or is inside, a dangerous root.
func IsDangerousRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range dangerousRoots {
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// canonicalize resolves path through symlinks. If the path does not exist,
// it returns an error wrapping os.IsNotExist.
func canonicalize(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}

// Admit resolves workspacePath and checks it against allowedRoots and the
// dangerous-root deny-list, implementing runner step 4.
//
// Returns the canonical workspace path on success.
func Admit(workspacePath string, allowedRoots []string) (string, error) {
	if strings.ContainsRune(workspacePath, 0) {
		return "", taskerr.New(taskerr.RequestInvalid, "workspace_path contains a null byte")
	}

	canonical, err := canonicalize(workspacePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", taskerr.Wrap(taskerr.WorkspaceNotFound, "workspace_path does not exist", err)
		}
		return "", taskerr.Wrap(taskerr.WorkspaceNotFound, "resolve workspace_path", err)
	}

	if IsDangerousRoot(canonical) {
		return "", taskerr.New(taskerr.WorkspaceInvalid, "workspace_path resolves inside a dangerous root")
	}

	if len(allowedRoots) > 0 {
		ok := false
		for _, root := range allowedRoots {
			canonicalRoot, rerr := canonicalize(root)
			if rerr != nil {
				// Root doesn't exist on disk: fall back to lexical resolution.
				canonicalRoot = filepath.Clean(root)
			}
			if canonicalRoot == string(filepath.Separator) {
				return "", taskerr.New(taskerr.WorkspaceInvalid, "allowed_roots entry resolves to filesystem root: "+root)
			}
			if canonical == canonicalRoot || strings.HasPrefix(canonical, canonicalRoot+string(filepath.Separator)) {
				ok = true
				break
			}
		}
		if !ok {
			return "", taskerr.New(taskerr.WorkspaceInvalid, "workspace_path is outside allowed_roots")
		}
	}

	fi, err := os.Stat(canonical)
	if err != nil || !fi.IsDir() {
		return "", taskerr.New(taskerr.WorkspaceNotFound, "workspace_path is not a directory")
	}

	return canonical, nil
}
