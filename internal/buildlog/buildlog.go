// Package buildlog implements the terminal logging surface that the rest of
// dsrbuild writes diagnostics and progress messages to. It exists so tests
// can substitute a buffer for the real terminal and so the session driver
// has exactly one place to configure verbosity.
package buildlog

import (
	"io"
	"log"
	"os"
)

// Logger is the minimal terminal logging surface used throughout dsrbuild.
// The zero value is not usable; use New.
type Logger struct {
	out *log.Logger
}

// New returns a Logger that writes to w with no timestamp or prefix,
// matching distri's direct log.Printf calls.
func New(w io.Writer) *Logger {
	return &Logger{out: log.New(w, "", 0)}
}

// Default returns a Logger writing to os.Stderr.
func Default() *Logger {
	return New(os.Stderr)
}

// Printf writes a formatted diagnostic line.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.out.Printf(format, args...)
}

// Message writes the evaluated text of a script's message command.
func (l *Logger) Message(text string) {
	l.out.Print(text)
}
