package fsrun

import (
	"os"

	"golang.org/x/term"
)

// TraceLineWidth returns the current terminal width for the trace/Q&A
// prompt renderer, falling back to 80 columns when stdout is not a TTY
// (spec.md §9 "the interactive Q&A mode of the command runner").
func TraceLineWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 80
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
