package pipeline

import (
	"os"
	"path/filepath"

	"easybuild/fsrun"
)

// extractSource dispatches to fsrun.Extract for real archives.
func extractSource(archivePath, destDir string) error {
	return fsrun.Extract(archivePath, destDir)
}

// applyPatch delegates to fsrun.ApplyPatch.
func applyPatch(patchPath, workDir string, stripLevel int) error {
	return fsrun.ApplyPatch(patchPath, workDir, stripLevel)
}

// firstSubdirOrSelf returns the first directory entry under dir, or dir
// itself if it contains none -- most source tarballs extract to a
// single top-level "<name>-<version>/" directory that becomes
// start_dir (spec.md §8 invariant 3: "start_dir is a descendant of
// builddir").
func firstSubdirOrSelf(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return dir
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(dir, e.Name())
		}
	}
	return dir
}
