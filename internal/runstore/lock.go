package runstore

import (
	"os"
	"time"

	taskerr "github.com/silver2dream/agentrun/internal/errors"
)

const (
	lockRetryInterval = 10 * time.Millisecond
	lockTimeout       = 5 * time.Second
)

// fileLock is an advisory lock: presence of lockPath, created exclusively.
// Acquire retries at lockRetryInterval until lockTimeout elapses, at which
// point it fails with a LockTimeout TaskError. There is no stale-lock
// detection: a lock left behind by a crashed holder is indistinguishable
// from a held lock until it is manually removed.
type fileLock struct {
	path string
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path}
}

// Acquire blocks (subject to lockTimeout) until the lock file is created.
// Callers MUST call Release on every exit path, including error paths.
func (l *fileLock) Acquire() error {
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_ = f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return taskerr.Wrap(taskerr.LockTimeout, "create lock file", err)
		}
		if time.Now().After(deadline) {
			return taskerr.New(taskerr.LockTimeout, "timed out waiting for lock: "+l.path)
		}
		time.Sleep(lockRetryInterval)
	}
}

// Release removes the lock file. It is safe to call even if the lock file
// is already gone.
func (l *fileLock) Release() {
	_ = os.Remove(l.path)
}

// withLock acquires l, runs fn, and releases l on every path (including a
// panic unwinding through fn), so a read-modify-write cycle never leaks a
// held lock.
func withLock(l *fileLock, fn func() error) error {
	if err := l.Acquire(); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
