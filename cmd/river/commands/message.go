// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/river/cmd/river/cli"
	"github.com/bureau-foundation/river/lib/identity"
	"github.com/bureau-foundation/river/lib/roomstate"
	"github.com/bureau-foundation/river/lib/synchronizer"
)

func messageCommand(env *Env) *cli.Command {
	return &cli.Command{
		Name:    "message",
		Summary: "Post messages",
		Subcommands: []*cli.Command{
			messageSendCommand(env),
		},
	}
}

func messageSendCommand(env *Env) *cli.Command {
	var flags sessionFlags
	var wait time.Duration
	return &cli.Command{
		Name:    "send",
		Summary: "Sign and post a message",
		Usage:   "river message send <room-key> <text>...",
		Examples: []cli.Example{
			{Command: `river message send 7Xk3...q9 "hello, room"`},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.DurationVar(&wait, "wait", defaultPublishWait, "how long to wait for the host; 0 saves locally only")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			key, rest, err := parseRoomKey(args, "river message send <room-key> <text>...")
			if err != nil {
				return err
			}
			session, err := env.open(&flags)
			if err != nil {
				return err
			}
			defer session.close()
			session.start(ctx)

			if err := session.sync.PostMessage(ctx, key, strings.Join(rest, " ")); err != nil {
				return err
			}
			if err := session.publish(ctx, key, wait); err != nil {
				return err
			}
			return session.close()
		},
	}
}

func nickCommand(env *Env) *cli.Command {
	var flags sessionFlags
	var wait time.Duration
	return &cli.Command{
		Name:    "nick",
		Summary: "Change your nickname in a room",
		Usage:   "river nick <room-key> <nickname>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("nick", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.DurationVar(&wait, "wait", defaultPublishWait, "how long to wait for the host; 0 saves locally only")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			key, rest, err := parseRoomKey(args, "river nick <room-key> <nickname>")
			if err != nil {
				return err
			}
			if len(rest) != 1 {
				return fmt.Errorf("exactly one nickname required")
			}
			session, err := env.open(&flags)
			if err != nil {
				return err
			}
			defer session.close()
			session.start(ctx)

			if err := session.sync.RenameSelf(ctx, key, rest[0]); err != nil {
				return err
			}
			if err := session.publish(ctx, key, wait); err != nil {
				return err
			}
			return session.close()
		},
	}
}

func banCommand(env *Env) *cli.Command {
	var flags sessionFlags
	var wait time.Duration
	return &cli.Command{
		Name:    "ban",
		Summary: "Ban a member and everyone they invited",
		Description: `Ban a member of a room. The member is named by verifying key
(river:v1:vk:...), short member id, or nickname. The owner may ban
anyone; other members may ban only members they invited, directly or
indirectly.`,
		Usage: "river ban <room-key> <member>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ban", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.DurationVar(&wait, "wait", defaultPublishWait, "how long to wait for the host; 0 saves locally only")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			key, rest, err := parseRoomKey(args, "river ban <room-key> <member>")
			if err != nil {
				return err
			}
			if len(rest) != 1 {
				return fmt.Errorf("exactly one member required")
			}
			session, err := env.open(&flags)
			if err != nil {
				return err
			}
			defer session.close()
			session.start(ctx)

			snapshot, err := session.sync.Room(ctx, key)
			if err != nil {
				return err
			}
			target, err := resolveMember(snapshot, rest[0])
			if err != nil {
				return err
			}
			if err := session.sync.BanMember(ctx, key, target); err != nil {
				return err
			}
			if err := session.publish(ctx, key, wait); err != nil {
				return err
			}
			return session.close()
		},
	}
}

// resolveMember finds the member named by text: a verifying key, a
// short member id, or a nickname. Ambiguous names are an error.
func resolveMember(snapshot synchronizer.Snapshot, text string) (identity.MemberID, error) {
	if strings.HasPrefix(text, "river:") {
		key, err := identity.ParseVerifyingKey(text)
		if err != nil {
			return identity.MemberID{}, err
		}
		return identity.MemberIDOf(key), nil
	}

	var matches []identity.MemberID
	for _, member := range snapshot.State.Members {
		id := member.ID()
		if id.String() == text || snapshot.State.Nickname(id) == text {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return identity.MemberID{}, fmt.Errorf("%w: no member %q in room %s", roomstate.ErrAuthorNotMember, text, snapshot.Key)
	case 1:
		return matches[0], nil
	default:
		return identity.MemberID{}, fmt.Errorf("%q names %d members; use the verifying key", text, len(matches))
	}
}
