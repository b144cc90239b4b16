// Package main is the entry point for the configur8 CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/configur8/internal/cli"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := cli.NewRootCommand()
	root.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	err := root.Execute()
	// Commands report their own failures; only print what cobra raised.
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
