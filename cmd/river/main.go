// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// River is the command-line client for signed chat rooms synchronized
// through a host node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/river/cmd/river/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that report their own outcome return an error with
		// an exit code and nothing further to print.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	env := &commands.Env{Stdout: os.Stdout, Stderr: os.Stderr}
	return commands.Root(env).Execute(ctx, os.Args[1:])
}
