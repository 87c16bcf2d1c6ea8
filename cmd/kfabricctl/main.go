// Command kfabricctl is a thin CLI client over kfabricd's control-plane
// HTTP API, for inspecting devices, queue pairs, MR-cache occupancy, and
// progress-engine configuration from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/hpc-fabrics/kfabric-verbs/cmd/kfabricctl/commands"
)

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
