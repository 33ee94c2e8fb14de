// Package repo implements the Repository Writer (C9): append-installed
// easyconfigs to a versioned store (each Writer's Commit documents what
// a failed commit leaves behind). Grounded on the
// teacher's builddb.DB commit pattern (builddb/db.go, builddb/crc.go)
// adapted from CRC-keyed build records to (name,full_version)-keyed
// easyconfig snapshots, and on the config-driven filesystem layout
// (spec.md §6 "<repositorypath>").
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"easybuild/store"
)

// Writer is implemented by every repository backend (spec.md §4.9).
type Writer interface {
	AddEasyconfig(path, name, version string, buildStats store.BuildStat, prevStats []store.BuildStat) error
	Commit(msg string) error
}

// FilesystemWriter appends a copy of each committed EC file under
// repositoryPath/<name>/<name>-<version>.eb. Each AddEasyconfig call is
// staged; Commit flushes the staged files and is atomic in the sense
// that either every staged file lands or none do (a rollback on error
// removes whatever was already copied in this commit).
type FilesystemWriter struct {
	root string

	staged []stagedFile
}

type stagedFile struct {
	srcPath string
	dstPath string
}

// NewFilesystemWriter returns a Writer rooted at root (spec.md's
// <repositorypath>).
func NewFilesystemWriter(root string) (*FilesystemWriter, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create repository path %s: %w", root, err)
	}
	return &FilesystemWriter{root: root}, nil
}

func (w *FilesystemWriter) AddEasyconfig(path, name, version string, buildStats store.BuildStat, prevStats []store.BuildStat) error {
	dst := filepath.Join(w.root, name, fmt.Sprintf("%s-%s.eb", name, version))
	w.staged = append(w.staged, stagedFile{srcPath: path, dstPath: dst})
	return nil
}

// Commit flushes all staged files to disk. On any failure, files
// already written during this commit are removed and the error is
// returned; files from prior commits are untouched.
func (w *FilesystemWriter) Commit(msg string) error {
	var written []string
	for _, sf := range w.staged {
		if err := w.copyOne(sf); err != nil {
			for _, p := range written {
				os.Remove(p)
			}
			w.staged = nil
			return fmt.Errorf("commit %q: %w", msg, err)
		}
		written = append(written, sf.dstPath)
	}
	w.staged = nil
	return nil
}

func (w *FilesystemWriter) copyOne(sf stagedFile) error {
	if err := os.MkdirAll(filepath.Dir(sf.dstPath), 0755); err != nil {
		return err
	}
	data, err := os.ReadFile(sf.srcPath)
	if err != nil {
		return err
	}
	return os.WriteFile(sf.dstPath, data, 0644)
}

// VersionedWriter additionally records each commit into a bbolt-backed
// store.Store so build statistics survive across runs (the "versioned-
// repository append" variant of spec.md §4.9).
type VersionedWriter struct {
	fs *FilesystemWriter
	db *store.Store

	pending []pendingRecord
}

type pendingRecord struct {
	name, version string
	text          string
	stat          store.BuildStat
}

// NewVersionedWriter wraps a FilesystemWriter with a bbolt commit log.
func NewVersionedWriter(root string, db *store.Store) (*VersionedWriter, error) {
	fs, err := NewFilesystemWriter(root)
	if err != nil {
		return nil, err
	}
	return &VersionedWriter{fs: fs, db: db}, nil
}

func (w *VersionedWriter) AddEasyconfig(path, name, version string, buildStats store.BuildStat, prevStats []store.BuildStat) error {
	if err := w.fs.AddEasyconfig(path, name, version, buildStats, prevStats); err != nil {
		return err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	w.pending = append(w.pending, pendingRecord{name: name, version: version, text: string(text), stat: buildStats})
	return nil
}

// Commit runs the filesystem commit first (which rolls back its own
// copies on failure); only once it succeeds are the bbolt records
// written. A failure while writing a bbolt record is returned as is:
// the copied files and any records already written stay in place.
func (w *VersionedWriter) Commit(msg string) error {
	pending := w.pending
	w.pending = nil

	if err := w.fs.Commit(msg); err != nil {
		return err
	}

	for _, p := range pending {
		if err := w.db.PutEasyconfig(store.EasyconfigRecord{
			Name:        p.name,
			FullVersion: p.version,
			Text:        p.text,
			CommittedAt: commitTime(),
		}); err != nil {
			return fmt.Errorf("commit %q: record easyconfig: %w", msg, err)
		}
		if err := w.db.AppendBuildStat(p.name, p.version, p.stat); err != nil {
			return fmt.Errorf("commit %q: record build stat: %w", msg, err)
		}
	}
	return nil
}

// commitTime is isolated so tests can stub it; the workflow itself
// never needs wall-clock precision beyond "most recent wins".
var commitTime = func() time.Time { return time.Now() }
