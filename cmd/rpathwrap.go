package cmd

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"easybuild/fsrun"
)

// rpathWrapCmd is the hidden re-exec target installed by
// pipeline.WriteRPathWrappers: each wrapper script under the PREPARE
// step's wrapper dir calls back into this binary as
// `eb __rpath-wrap <real-compiler> "$@"`, letting it rewrite the
// argument list with fsrun.WrapRpathArgs before handing off to the
// real toolchain, instead of relying on -rpath-link or baked-in
// RUNPATH entries.
var rpathWrapCmd = &cobra.Command{
	Use:    "__rpath-wrap <real-compiler> [args...]",
	Hidden: true,
	Args:   cobra.MinimumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		real := args[0]
		rest := args[1:]

		extra := fsrun.LibraryPathEntries(os.Getenv("LIBRARY_PATH"))
		wrapped := fsrun.WrapRpathArgs(filepath.Base(real), rest, extra, nil)

		full := append([]string{real}, wrapped...)
		return syscall.Exec(real, full, os.Environ())
	},
}

func init() {
	rootCmd.AddCommand(rpathWrapCmd)
}
