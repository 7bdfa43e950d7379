// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/river/cmd/river/cli"
	"github.com/bureau-foundation/river/lib/roomstate"
	"github.com/bureau-foundation/river/lib/synchronizer"
)

func syncCommand(env *Env) *cli.Command {
	var flags sessionFlags
	var once bool
	return &cli.Command{
		Name:    "sync",
		Summary: "Keep every room synchronized with the host",
		Description: `Connect to the host, publish every stored room, and stay subscribed,
printing connection and room changes as they happen. Runs until
interrupted. With --once, exits as soon as every room is subscribed
or failed; the exit code is 1 if any room failed.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sync", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&once, "once", false, "exit when every room has settled")
			return flagSet
		},
		Run: func(ctx context.Context, _ []string) error {
			session, err := env.open(&flags)
			if err != nil {
				return err
			}
			defer session.close()
			session.start(ctx)

			updates, cancel := session.sync.Status().Subscribe()
			defer cancel()
			reporter := &statusReporter{w: env.Stdout, style: newStyles(env.Stdout)}
			for {
				select {
				case <-ctx.Done():
					return session.close()
				case err := <-session.done:
					session.closed = true
					if errors.Is(err, context.Canceled) {
						err = nil
					}
					return errors.Join(err, session.sqlite.Close())
				case status := <-updates:
					reporter.report(status)
					if !once || !allSettled(status) {
						continue
					}
					if err := session.close(); err != nil {
						return err
					}
					for _, room := range status.Rooms {
						if room.State == synchronizer.RoomFailed {
							return &cli.ExitError{Code: 1}
						}
					}
					return nil
				}
			}
		},
	}
}

func allSettled(status synchronizer.Status) bool {
	if !status.Loaded {
		return false
	}
	for _, room := range status.Rooms {
		if !settled(room) {
			return false
		}
	}
	return true
}

// statusReporter prints what changed between successive statuses.
type statusReporter struct {
	w       io.Writer
	style   styles
	started bool
	last    synchronizer.Status
}

func (r *statusReporter) report(status synchronizer.Status) {
	if !r.started || status.Connection != r.last.Connection || status.Reason != r.last.Reason {
		fmt.Fprintf(r.w, "%s %s\n", r.style.heading.Render("host"), r.style.connection(status))
	}
	for _, key := range sortedKeys(status.Rooms) {
		room := status.Rooms[key]
		previous, known := r.last.Rooms[key]
		if r.started && known && previous.State == room.State && previous.Reason == room.Reason {
			continue
		}
		r.printRoom(key, room)
	}
	r.started = true
	r.last = status
}

func (r *statusReporter) printRoom(key roomstate.RoomKey, room synchronizer.RoomStatus) {
	line := fmt.Sprintf("%s %s", r.style.key.Render(key.String()), r.style.syncState(room.State))
	if room.Reason != "" {
		line += " " + r.style.faint.Render(room.Reason)
	}
	fmt.Fprintln(r.w, line)
}
