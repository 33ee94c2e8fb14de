package fsrun

import (
	"path/filepath"
	"strings"
)

// versionCheckFlags suppress RPATH injection entirely: the command is
// being run in "tell me your version" mode, not to actually link
// anything (grounded on original_source/easybuild/scripts/rpath_args.py).
var versionCheckFlags = map[string]bool{
	"-v": true, "-V": true, "--version": true, "-dumpversion": true,
}

// headerOnlyArgs are the argument to "-x" that mean "compile a header,
// don't link" -- rpath injection must be suppressed for these too.
var headerOnlyArgs = map[string]bool{
	"c-header": true, "c++-header": true,
}

// bareRpathCommands get "-rpath=" instead of "-Wl,-rpath=" because they
// invoke the linker directly rather than via a compiler driver.
var bareRpathCommands = map[string]bool{
	"ld": true, "ld.gold": true, "ld.bfd": true,
}

// RealPathFunc resolves symlinks; failures fall back to the original path
// (a path that doesn't exist yet, e.g. under a builddir, is still a
// valid -L argument).
type RealPathFunc func(string) string

// WrapRpathArgs rewrites a linker/compiler invocation's argument list so
// that every "-L<path>" gains exactly one matching "-rpath=<path>" (or
// "-Wl,-rpath=<path>" for non-ld commands), deduplicated by resolved
// real path, with --enable-new-dtags flipped to --disable-new-dtags.
// extraLibraryPaths (typically derived from $LIBRARY_PATH) are appended
// as additional rpath entries. Suppressed entirely for version-check
// invocations or header-only compiles (spec.md §4.1, invariant 10).
func WrapRpathArgs(cmdName string, args []string, extraLibraryPaths []string, realpath RealPathFunc) []string {
	if realpath == nil {
		realpath = func(p string) string {
			if rp, err := filepath.EvalSymlinks(p); err == nil {
				return rp
			}
			return p
		}
	}

	flagPrefix := "-Wl,"
	if bareRpathCommands[cmdName] {
		flagPrefix = ""
	}

	addRpath := true
	var outArgs []string
	var rpathPaths []string
	seen := map[string]bool{}

	addPath := func(p string) {
		if p == "" || !filepath.IsAbs(p) {
			return
		}
		real := realpath(p)
		if seen[real] {
			return
		}
		seen[real] = true
		rpathPaths = append(rpathPaths, p)
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case versionCheckFlags[arg]:
			addRpath = false
			outArgs = append(outArgs, arg)

		case arg == "-x":
			outArgs = append(outArgs, arg)
			if i+1 < len(args) {
				if headerOnlyArgs[args[i+1]] {
					addRpath = false
				}
				i++
				outArgs = append(outArgs, args[i])
			}

		case arg == "--enable-new-dtags":
			outArgs = append(outArgs, "--disable-new-dtags")

		case strings.HasPrefix(arg, "-L"):
			var libPath string
			if arg == "-L" {
				i++
				if i < len(args) {
					libPath = args[i]
				}
				outArgs = append(outArgs, arg)
				if libPath != "" {
					outArgs = append(outArgs, libPath)
				}
			} else {
				libPath = arg[2:]
				outArgs = append(outArgs, arg)
			}
			addPath(libPath)

		default:
			outArgs = append(outArgs, arg)
		}
	}

	if !addRpath {
		return outArgs
	}

	for _, p := range extraLibraryPaths {
		addPath(p)
	}

	for _, p := range rpathPaths {
		outArgs = append(outArgs, flagPrefix+"-rpath="+p)
	}

	return outArgs
}

// LibraryPathEntries splits a colon-separated $LIBRARY_PATH-style value
// into its component directories, ignoring empty segments.
func LibraryPathEntries(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ":") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
