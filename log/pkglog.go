package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// UnitLogger is the per-install log for a single Build Unit
// (<installdir>/easybuild/easybuild-<name>-<version>-*.log, spec.md §6).
// It is also an io.Writer so step executors can pipe subprocess
// stdout/stderr directly into it (grounded on the teacher's loggerWriter
// adapter in build/phases.go).
type UnitLogger struct {
	file     *os.File
	path     string
	moduleID string
	mu       sync.Mutex
}

// NewUnitLogger creates the per-unit log file under dir, named
// easybuild-<name>-<version>-<pid>.log.
func NewUnitLogger(dir, name, version string) (*UnitLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	filename := fmt.Sprintf("easybuild-%s-%s-%d.log", name, version, os.Getpid())
	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	ul := &UnitLogger{file: f, path: path, moduleID: name + "/" + version}
	ul.WriteHeader()
	return ul, nil
}

// Path returns the full path to the log file, surfaced to the user on
// failure per spec.md §7.
func (ul *UnitLogger) Path() string { return ul.path }

// Write implements io.Writer so an UnitLogger can be used directly as a
// command's Stdout/Stderr sink.
func (ul *UnitLogger) Write(p []byte) (int, error) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	n, err := ul.file.Write(p)
	ul.file.Sync()
	return n, err
}

var _ io.Writer = (*UnitLogger)(nil)

// WriteCommand records the exact command line about to be executed.
func (ul *UnitLogger) WriteCommand(cmd string) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	fmt.Fprintf(ul.file, "\n$ %s\n", cmd)
	ul.file.Sync()
}

// WriteHeader writes the log file's opening banner.
func (ul *UnitLogger) WriteHeader() {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	fmt.Fprintf(ul.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(ul.file, "Install log: %s\n", ul.moduleID)
	fmt.Fprintf(ul.file, "Started: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(ul.file, "%s\n\n", strings.Repeat("=", 70))
	ul.file.Sync()
}

// WriteStep records entry into a new pipeline step (spec.md §4.6).
func (ul *UnitLogger) WriteStep(step string) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	fmt.Fprintf(ul.file, "\n%s\nStep: %s\nTime: %s\n%s\n",
		strings.Repeat("=", 70), step, time.Now().Format("15:04:05"), strings.Repeat("=", 70))
	ul.file.Sync()
}

// WriteSuccess records the terminal DONE state.
func (ul *UnitLogger) WriteSuccess(duration time.Duration) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	fmt.Fprintf(ul.file, "\n%s\nINSTALL SUCCESS\nCompleted: %s\nDuration: %s\n%s\n",
		strings.Repeat("=", 70), time.Now().Format(time.RFC3339), duration, strings.Repeat("=", 70))
	ul.file.Sync()
}

// WriteFailure records the terminal FAILED state with its reason.
func (ul *UnitLogger) WriteFailure(duration time.Duration, reason string) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	fmt.Fprintf(ul.file, "\n%s\nINSTALL FAILED\nReason: %s\nCompleted: %s\nDuration: %s\n%s\n",
		strings.Repeat("=", 70), reason, time.Now().Format(time.RFC3339), duration, strings.Repeat("=", 70))
	ul.file.Sync()
}

// Close closes the underlying file.
func (ul *UnitLogger) Close() error {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return ul.file.Close()
}

// Tail returns the last n bytes of the log, used by the orchestrator to
// print the failing unit's tail on fatal error (spec.md §7, "N defaults
// to 300").
func Tail(path string, n int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	size := info.Size()
	start := int64(0)
	if size > n {
		start = size - n
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return "", err
	}
	buf := make([]byte, size-start)
	if _, err := io.ReadFull(f, buf); err != nil && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return string(buf), nil
}
