package pipeline

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"easybuild/errs"
)

var unsafeLockChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitizeLockName turns a module ID into a filesystem-safe lock
// directory name (spec.md §4.6 "Locks").
func sanitizeLockName(moduleID string) string {
	return unsafeLockChars.ReplaceAllString(strings.ReplaceAll(moduleID, "/", "-"), "_")
}

// unitLock is a directory-based mutual-exclusion lock at
// <installpath>/software/.locks/<sanitized-module-id>.lock, acquired
// before the first write step and released on every exit path.
type unitLock struct {
	path string
	held bool
}

func newUnitLock(installPath, moduleID string) *unitLock {
	return &unitLock{path: filepath.Join(installPath, "software", ".locks", sanitizeLockName(moduleID)+".lock")}
}

// Acquire takes the lock via an atomic directory creation (os.Mkdir
// fails with ErrExist when another process holds it).
func (l *unitLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return &errs.IOFailedError{Op: "mkdir", Path: filepath.Dir(l.path), Err: err}
	}
	if err := os.Mkdir(l.path, 0755); err != nil {
		if os.IsExist(err) {
			return errs.ErrLockHeld
		}
		return &errs.IOFailedError{Op: "lock", Path: l.path, Err: err}
	}
	l.held = true
	return nil
}

// Release removes the lock directory. Safe to call even if Acquire was
// never called or failed.
func (l *unitLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	return os.RemoveAll(l.path)
}
