// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the river command tree.
package commands

import (
	"github.com/bureau-foundation/river/cmd/river/cli"
)

// Root returns the top-level river command.
func Root(env *Env) *cli.Command {
	return &cli.Command{
		Name:    "river",
		Summary: "Signed chat rooms synchronized through a host node",
		Description: `River keeps signed chat rooms on this machine and synchronizes them
with a host node over a websocket. Every change is signed locally;
the host and other replicas verify signatures and merge.

Configuration is read from --config, then $RIVER_CONFIG, then
built-in defaults rooted at ~/.local/share/river.`,
		Output: env.Stderr,
		Subcommands: []*cli.Command{
			keyCommand(env),
			roomCommand(env),
			inviteCommand(env),
			messageCommand(env),
			nickCommand(env),
			banCommand(env),
			syncCommand(env),
		},
	}
}
