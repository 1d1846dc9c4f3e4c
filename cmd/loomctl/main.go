// Command loomctl is a thin command-line front end over the loom
// workspace engine: it wires cobra subcommands directly to
// internal/workspace operations rather than reimplementing a full
// stacked-branch CLI surface.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
