// Package terminal holds small helpers for the interactive prompt.
package terminal

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Interactive reports whether stdin and stdout are both terminals.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Width returns the terminal width, or 80 when it cannot be determined.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// LinesFor returns how many terminal rows textLength characters occupy at the
// given width, plus the row the cursor moved to when Enter was pressed.
func LinesFor(textLength, width int) int {
	if width <= 0 {
		width = 80
	}
	lines := (textLength + width - 1) / width
	if lines < 1 {
		lines = 1
	}
	return lines + 1
}

// ClearPreviousLines erases a prompt and the input typed after it so that
// secrets such as connection strings do not stay on screen.
func ClearPreviousLines(textLength int) {
	clearLines(os.Stdout, LinesFor(textLength, Width()))
}

func clearLines(w io.Writer, n int) {
	for i := 0; i < n; i++ {
		fmt.Fprint(w, "\r\x1b[2K") // clear line
		if i < n-1 {
			fmt.Fprint(w, "\x1b[1A") // up one
		}
	}
}
