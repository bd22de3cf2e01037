// Package main provides the miniapp entrypoint.
//
// Usage:
//
//	miniapp [--config file] <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: failure
//   - 3: the app loaded but consent is still pending (fetch)
package main

import (
	"os"

	"github.com/GriffinCanCode/miniapp/internal/cli"
)

func main() {
	if err := cli.New(os.Stdout).Run(os.Args); err != nil {
		os.Exit(cli.ExitFailure)
	}
}
