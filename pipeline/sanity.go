package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"easybuild/errs"
)

// runSanity implements the SANITY step (spec.md §4.6, §8 scenario S6):
// every declared file must exist and be non-empty, every declared
// directory must exist and be non-empty, and every sanity check command
// must exit zero when run in the install directory with the unit's
// current environment; the unit's own module is not loaded first.
func (r *run) runSanity(st *StepContext) error {
	paths := r.ec.SanityCheckPaths

	for _, f := range paths.Files {
		full := filepath.Join(st.InstallDir, f)
		info, err := os.Stat(full)
		if err != nil {
			return &errs.SanityCheckFailedError{Check: f, Detail: fmt.Sprintf("ls -l %s: %v", f, err)}
		}
		if info.Size() == 0 {
			return &errs.SanityCheckFailedError{Check: f, Detail: fmt.Sprintf("ls -l %s: file is empty", f)}
		}
	}

	for _, d := range paths.Dirs {
		full := filepath.Join(st.InstallDir, d)
		entries, err := os.ReadDir(full)
		if err != nil {
			return &errs.SanityCheckFailedError{Check: d, Detail: fmt.Sprintf("ls -l %s: %v", d, err)}
		}
		if len(entries) == 0 {
			return &errs.SanityCheckFailedError{Check: d, Detail: fmt.Sprintf("ls -l %s: directory is empty", d)}
		}
	}

	for _, cmd := range r.ec.SanityCheckCommands {
		if err := st.RunInInstallDir("/bin/sh", "-c", cmd); err != nil {
			return &errs.SanityCheckFailedError{Check: cmd, Detail: err.Error()}
		}
	}

	for _, ext := range r.ec.ExtList {
		for _, cmd := range ext.SanityCheckCommands {
			if err := st.RunInInstallDir("/bin/sh", "-c", cmd); err != nil {
				return &errs.SanityCheckFailedError{Check: fmt.Sprintf("%s: %s", ext.Name, cmd), Detail: err.Error()}
			}
		}
	}

	return nil
}
