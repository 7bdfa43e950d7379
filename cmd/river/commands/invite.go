// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/river/cmd/river/cli"
	"github.com/bureau-foundation/river/lib/invite"
	"github.com/bureau-foundation/river/lib/synchronizer"
)

func inviteCommand(env *Env) *cli.Command {
	return &cli.Command{
		Name:    "invite",
		Summary: "Invite members and accept invitations",
		Subcommands: []*cli.Command{
			inviteCreateCommand(env),
			inviteAcceptCommand(env),
		},
	}
}

func inviteCreateCommand(env *Env) *cli.Command {
	var flags sessionFlags
	return &cli.Command{
		Name:    "create",
		Summary: "Print an invitation token for a room",
		Description: `Create an invitation to a room you participate in. The token carries a
fresh signing key for the invitee and your signature over their
membership; send it to them over a private channel.`,
		Usage: "river invite create <room-key>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			key, _, err := parseRoomKey(args, "river invite create <room-key>")
			if err != nil {
				return err
			}
			session, err := env.open(&flags)
			if err != nil {
				return err
			}
			defer session.close()
			session.start(ctx)

			invitation, err := session.sync.InviteMember(ctx, key)
			if err != nil {
				return err
			}
			token, err := invitation.Encode()
			if err != nil {
				return err
			}
			fmt.Fprintln(env.Stdout, token)
			return session.close()
		},
	}
}

func inviteAcceptCommand(env *Env) *cli.Command {
	var flags sessionFlags
	var nickname string
	var wait time.Duration
	return &cli.Command{
		Name:    "accept",
		Summary: "Join a room from an invitation token",
		Description: `Fetch the invited room from the host, add yourself as a member, and
publish the result. The host must be reachable: the room is not saved
until it has been retrieved.`,
		Usage: "river invite accept <token> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("accept", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&nickname, "nickname", "", "nickname in the room (default: user.nickname)")
			flagSet.DurationVar(&wait, "wait", 30*time.Second, "how long to wait for the host")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one invitation token required\n\nUsage: river invite accept <token>")
			}
			invitation, err := invite.Decode(args[0])
			if err != nil {
				return err
			}
			if wait <= 0 {
				return fmt.Errorf("--wait must be positive: an invitation is only saved once retrieved")
			}
			session, err := env.open(&flags)
			if err != nil {
				return err
			}
			defer session.close()
			nick, err := session.nickname(nickname)
			if err != nil {
				return err
			}
			session.start(ctx)

			key, err := session.sync.AcceptInvitation(ctx, invitation, nick)
			if err != nil {
				return err
			}
			waitCtx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()
			status, err := session.sync.WaitFor(waitCtx, func(status synchronizer.Status) bool {
				pending := status.Invitations[key].Status
				return pending == invite.Failed || (pending == invite.Retrieved && settled(status.Rooms[key]))
			})
			if err != nil {
				return fmt.Errorf("invitation not retrieved (%s): %w", describeConnection(status), err)
			}
			if pending := status.Invitations[key]; pending.Status == invite.Failed {
				return fmt.Errorf("invitation failed: %s", pending.Reason)
			}
			if room := status.Rooms[key]; room.State == synchronizer.RoomFailed {
				return fmt.Errorf("joined room %s locally but the host rejected it: %s", key, room.Reason)
			}
			fmt.Fprintln(env.Stdout, newStyles(env.Stdout).key.Render(key.String()))
			return session.close()
		},
	}
}

func settled(room synchronizer.RoomStatus) bool {
	return room.State == synchronizer.Subscribed || room.State == synchronizer.RoomFailed
}
