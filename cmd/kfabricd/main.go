// Command kfabricd is the reference daemon harness for the verbs/kfabric
// shim: it discovers devices, registers them, drives one progress driver
// per device, and serves the read-only control-plane and metrics
// endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/hpc-fabrics/kfabric-verbs/cmd/kfabricd/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
