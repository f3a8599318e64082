// Package main is the entry point for the area CLI.
package main

import (
	"fmt"
	"os"

	// Reactions convert calendar times with time.LoadLocation.
	_ "time/tzdata"

	"github.com/roach88/area/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.Version = fmt.Sprintf("%s (%s)", version, commit)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
