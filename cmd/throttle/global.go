package main

import (
	"fmt"
	"os"
)

// globalOptions mirrors the teacher's cmd/restic GlobalOptions shape
// (a small flat struct read by PersistentPreRunE and every command), sized
// to this program's much smaller flag surface.
type globalOptions struct {
	JSON bool
}

var opts globalOptions

// Exit terminates the process with code, named after cmd/restic's Exit
// helper. It calls os.Exit directly: deferred calls do not run and nothing
// is flushed first.
func Exit(code int) {
	os.Exit(code)
}

// Warnf writes a formatted warning to stderr.
func Warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// Verbosef writes a formatted message to stdout.
func Verbosef(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}
