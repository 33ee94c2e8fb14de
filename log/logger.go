// Package log provides the engine's run-level and per-unit logging.
//
// Logger multiplexes outcomes across a fixed set of numbered log files
// under cfg.TmpLogDir (mirroring the filesystem layout in spec.md §6),
// while LibraryLogger (interface.go) lets every core package (resolver,
// pipeline, modules adapter) emit progress without depending on a
// concrete sink. UnitLogger (pkglog.go) gives each Build Unit its own
// per-install log file.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"easybuild/config"
)

// Logger manages the numbered run-level log files.
type Logger struct {
	cfg          *config.Config
	resultsFile  *os.File
	successFile  *os.File
	failureFile  *os.File
	ignoredFile  *os.File
	skippedFile  *os.File
	abnormalFile *os.File
	mu           sync.Mutex
}

// NewLogger creates the run-level logger, opening the numbered log
// files under cfg.TmpLogDir.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.TmpLogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{cfg: cfg}
	var err error

	if l.resultsFile, err = os.Create(filepath.Join(cfg.TmpLogDir, "00_last_results.log")); err != nil {
		return nil, err
	}
	if l.successFile, err = os.Create(filepath.Join(cfg.TmpLogDir, "01_success_list.log")); err != nil {
		return nil, err
	}
	if l.failureFile, err = os.Create(filepath.Join(cfg.TmpLogDir, "02_failure_list.log")); err != nil {
		return nil, err
	}
	if l.ignoredFile, err = os.Create(filepath.Join(cfg.TmpLogDir, "03_ignored_list.log")); err != nil {
		return nil, err
	}
	if l.skippedFile, err = os.Create(filepath.Join(cfg.TmpLogDir, "04_skipped_list.log")); err != nil {
		return nil, err
	}
	if l.abnormalFile, err = os.Create(filepath.Join(cfg.TmpLogDir, "05_abnormal_command_output.log")); err != nil {
		return nil, err
	}

	l.writeHeaders()
	return l, nil
}

// Close closes all log files. Safe to call once; further use is undefined.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range []*os.File{l.resultsFile, l.successFile, l.failureFile, l.ignoredFile, l.skippedFile, l.abnormalFile} {
		if f != nil {
			f.Close()
		}
	}
}

func (l *Logger) writeHeaders() {
	timestamp := time.Now().Format(time.RFC3339)
	fmt.Fprintf(l.resultsFile, "easybuild run log - %s\n%s\n\n", timestamp, strings.Repeat("=", 70))
	fmt.Fprintf(l.successFile, "Successful installs - %s\n\n", timestamp)
	fmt.Fprintf(l.failureFile, "Failed installs - %s\n\n", timestamp)
	fmt.Fprintf(l.ignoredFile, "Already-installed modules (skipped) - %s\n\n", timestamp)
	fmt.Fprintf(l.skippedFile, "Skipped units (dependency failed) - %s\n\n", timestamp)
	fmt.Fprintf(l.abnormalFile, "Abnormal command output - %s\n\n", timestamp)
}

// Success records a Build Unit that completed installation (state DONE).
func (l *Logger) Success(moduleID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] SUCCESS: %s\n", ts, moduleID)
	fmt.Fprintf(l.successFile, "%s\n", moduleID)
	l.resultsFile.Sync()
	l.successFile.Sync()
}

// Failed records a Build Unit that transitioned to FAILED at the given step.
func (l *Logger) Failed(moduleID, step string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] FAILED: %s (step: %s)\n", ts, moduleID, step)
	fmt.Fprintf(l.failureFile, "%s (step: %s)\n", moduleID, step)
	l.resultsFile.Sync()
	l.failureFile.Sync()
}

// Skipped records a Build Unit skipped because a dependency failed.
func (l *Logger) Skipped(moduleID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] SKIPPED: %s\n", ts, moduleID)
	fmt.Fprintf(l.skippedFile, "%s\n", moduleID)
	l.resultsFile.Sync()
	l.skippedFile.Sync()
}

// Ignored records a module that was already installed and was skipped
// without being rebuilt (spec.md §7 "Recoverable non-errors").
func (l *Logger) Ignored(moduleID, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] ALREADY INSTALLED: %s\n", ts, moduleID)
	fmt.Fprintf(l.ignoredFile, "%s: %s\n", moduleID, reason)
	l.resultsFile.Sync()
	l.ignoredFile.Sync()
}

// Abnormal records unexpected command output surfaced from a step.
func (l *Logger) Abnormal(moduleID, output string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.abnormalFile, "[%s] %s\n%s\n\n", ts, moduleID, output)
	l.abnormalFile.Sync()
}

// Info writes an informational line to the results log.
func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] INFO: %s\n", ts, msg)
	l.resultsFile.Sync()
}

// Error writes an error line to the results log.
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] ERROR: %s\n", ts, msg)
	l.resultsFile.Sync()
}

// WriteSummary appends the end-of-run summary block to the results log.
func (l *Logger) WriteSummary(total, success, failed, skipped, ignored int, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.resultsFile, "\n%s\nRUN SUMMARY\n%s\n", strings.Repeat("=", 70), strings.Repeat("=", 70))
	fmt.Fprintf(l.resultsFile, "Total units:  %d\n", total)
	fmt.Fprintf(l.resultsFile, "Success:      %d\n", success)
	fmt.Fprintf(l.resultsFile, "Failed:       %d\n", failed)
	fmt.Fprintf(l.resultsFile, "Skipped:      %d\n", skipped)
	fmt.Fprintf(l.resultsFile, "Ignored:      %d\n", ignored)
	fmt.Fprintf(l.resultsFile, "Duration:     %s\n", duration)
	fmt.Fprintf(l.resultsFile, "%s\n", strings.Repeat("=", 70))
	l.resultsFile.Sync()
}
