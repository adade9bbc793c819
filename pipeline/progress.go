package pipeline

import (
	"os"

	"github.com/mattn/go-isatty"
)

// isTTY reports whether f is attached to a terminal, used to suppress
// progress bar rendering when output is redirected to a file or pipe.
func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
