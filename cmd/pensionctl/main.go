// pensionctl - Offline command-line front end to the pension rules engine.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/opensource-finance/pensionrules/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()

	// Commands report their own errors; anything else came from cobra's
	// flag and argument parsing.
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(cli.GetExitCode(err))
}
