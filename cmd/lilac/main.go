// Command lilac is a thin CLI driver over the dataset engine's Query API
// (spec §6 expansion): each subcommand reads a JSON request on stdin (or
// takes flags for the simpler ones) and writes a JSON response to stdout.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
