// Command rulescript compiles, validates and runs entity rule tables.
//
// Usage:
//
//	# Compile and summarize the tables of a CUE package
//	rulescript compile ./rules
//
//	# Check tables against the method library
//	rulescript validate ./rules --type creature --components health
//
//	# Run scenarios
//	rulescript run ./scenarios
//
//	# Tick the configured world until interrupted
//	rulescript serve --config rulescript.yaml --watch
//
//	# Inspect stored snapshots
//	rulescript snapshot list --db data/rulescript.db
package main

import (
	"fmt"
	"os"

	"github.com/FilamentGames/rulescript/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
