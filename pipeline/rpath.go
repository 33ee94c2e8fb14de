package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// RPathWrapperNames lists the compiler/linker invocations the PREPARE
// step wraps for RPATH injection (spec.md §4.1, §9 SUPPLEMENTED
// FEATURES "RPATH wrapper exact algorithm").
var RPathWrapperNames = []string{"gcc", "g++", "cc", "c++", "gfortran", "ld", "ld.gold", "ld.bfd"}

// rpathWrapperScript is the template for a generated wrapper: it
// re-execs the easybuild binary itself in a hidden mode that rewrites
// argv via fsrun.WrapRpathArgs before exec'ing the real tool, mirroring
// the original implementation's shell-script wrapper
// (easybuild/scripts/rpath_args.py) adapted to a single statically
// linked binary instead of a separate Python helper.
const rpathWrapperScript = "#!/bin/sh\nexec %q __rpath-wrap %q \"$@\"\n"

// WriteRPathWrappers locates each name in RPathWrapperNames on PATH and
// writes a wrapper script for it under wrapperDir. It returns only an
// error; putting wrapperDir on PATH is up to the caller. selfExe is the
// path to the current
// easybuild binary (os.Executable()).
func WriteRPathWrappers(wrapperDir, selfExe string) error {
	if err := os.MkdirAll(wrapperDir, 0755); err != nil {
		return err
	}
	for _, name := range RPathWrapperNames {
		real, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		script := fmt.Sprintf(rpathWrapperScript, selfExe, real)
		path := filepath.Join(wrapperDir, name)
		if err := os.WriteFile(path, []byte(script), 0755); err != nil {
			return err
		}
	}
	return nil
}
