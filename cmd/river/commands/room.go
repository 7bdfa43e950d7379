// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/river/cmd/river/cli"
	"github.com/bureau-foundation/river/lib/roomstate"
	"github.com/bureau-foundation/river/lib/synchronizer"
)

const defaultPublishWait = 10 * time.Second

func roomCommand(env *Env) *cli.Command {
	return &cli.Command{
		Name:    "room",
		Summary: "Create, inspect, and remove rooms",
		Subcommands: []*cli.Command{
			roomCreateCommand(env),
			roomListCommand(env),
			roomShowCommand(env),
			roomConfigureCommand(env),
			roomRemoveCommand(env),
		},
	}
}

func roomCreateCommand(env *Env) *cli.Command {
	var flags sessionFlags
	var nickname string
	var wait time.Duration
	return &cli.Command{
		Name:    "create",
		Summary: "Create a room owned by the local signing key",
		Usage:   "river room create <name> [flags]",
		Examples: []cli.Example{
			{Description: "Create a room and publish it", Command: "river room create lobby --nickname alice"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&nickname, "nickname", "", "owner nickname (default: user.nickname)")
			flagSet.DurationVar(&wait, "wait", defaultPublishWait, "how long to wait for the host; 0 saves locally only")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one room name required\n\nUsage: river room create <name>")
			}
			session, err := env.open(&flags)
			if err != nil {
				return err
			}
			defer session.close()

			owner, err := session.signingKey()
			if err != nil {
				return err
			}
			nick, err := session.nickname(nickname)
			if err != nil {
				return err
			}
			session.start(ctx)
			key, err := session.sync.CreateRoom(ctx, owner, args[0], nick)
			if err != nil {
				return err
			}
			fmt.Fprintln(env.Stdout, newStyles(env.Stdout).key.Render(key.String()))
			if err := session.publish(ctx, key, wait); err != nil {
				return err
			}
			return session.close()
		},
	}
}

func roomListCommand(env *Env) *cli.Command {
	var flags sessionFlags
	return &cli.Command{
		Name:    "list",
		Summary: "List the rooms in the local store",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, _ []string) error {
			session, err := env.open(&flags)
			if err != nil {
				return err
			}
			defer session.close()

			rooms, err := session.store.Load(ctx)
			if err != nil {
				return err
			}
			if len(rooms) == 0 {
				fmt.Fprintln(env.Stderr, "no rooms")
				return nil
			}

			style := newStyles(env.Stdout)
			writer := tabwriter.NewWriter(env.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, style.heading.Render("KEY")+"\t"+style.heading.Render("NAME")+"\t"+
				style.heading.Render("MEMBERS")+"\t"+style.heading.Render("MESSAGES")+"\t"+style.heading.Render("LAST SYNCED"))
			for _, key := range sortedKeys(rooms) {
				room := rooms[key]
				fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\n",
					style.key.Render(key.String()),
					room.State.Configuration.Config.Name,
					len(room.State.Members)+1,
					len(room.State.Messages),
					formatTime(room.LastSynced))
			}
			return writer.Flush()
		},
	}
}

func roomShowCommand(env *Env) *cli.Command {
	var flags sessionFlags
	var limit int
	return &cli.Command{
		Name:    "show",
		Summary: "Print a room's members and recent messages",
		Usage:   "river room show <room-key> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.IntVar(&limit, "limit", 20, "number of messages to print (0 for all)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			key, _, err := parseRoomKey(args, "river room show <room-key>")
			if err != nil {
				return err
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
			printRoom(env, snapshot, limit)
			return session.close()
		},
	}
}

func printRoom(env *Env, snapshot synchronizer.Snapshot, limit int) {
	style := newStyles(env.Stdout)
	state := snapshot.State
	config := state.Configuration.Config
	fmt.Fprintf(env.Stdout, "%s %s\n", style.heading.Render(config.Name), style.key.Render(snapshot.Key.String()))

	owner := snapshot.Parameters.OwnerID()
	members := []string{state.Nickname(owner) + style.faint.Render(" (owner)")}
	for _, member := range state.Members {
		members = append(members, state.Nickname(member.ID()))
	}
	fmt.Fprintf(env.Stdout, "%s %s\n", style.heading.Render("members:"), strings.Join(members, ", "))
	if len(state.Bans) > 0 {
		fmt.Fprintf(env.Stdout, "%s %d\n", style.heading.Render("bans:"), len(state.Bans))
	}
	fmt.Fprintln(env.Stdout)

	messages := state.Messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	for _, message := range messages {
		fmt.Fprintf(env.Stdout, "%s %s %s\n",
			style.faint.Render(formatTime(message.Message.Timestamp())),
			style.author.Render(state.Nickname(message.Message.Author)+":"),
			message.Message.Content)
	}
}

func roomConfigureCommand(env *Env) *cli.Command {
	var flags sessionFlags
	var name string
	var maxMessages, maxMembers, maxMessageSize, maxBans, maxNickname uint32
	var wait time.Duration
	return &cli.Command{
		Name:    "configure",
		Summary: "Change a room's name or limits (owner only)",
		Usage:   "river room configure <room-key> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("configure", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&name, "name", "", "new room name")
			flagSet.Uint32Var(&maxMessages, "max-messages", 0, "recent messages kept")
			flagSet.Uint32Var(&maxMessageSize, "max-message-size", 0, "largest message in bytes")
			flagSet.Uint32Var(&maxMembers, "max-members", 0, "member limit")
			flagSet.Uint32Var(&maxBans, "max-bans", 0, "ban limit")
			flagSet.Uint32Var(&maxNickname, "max-nickname", 0, "longest nickname in bytes")
			flagSet.DurationVar(&wait, "wait", defaultPublishWait, "how long to wait for the host; 0 saves locally only")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			key, _, err := parseRoomKey(args, "river room configure <room-key> [flags]")
			if err != nil {
				return err
			}
			session, err := env.open(&flags)
			if err != nil {
				return err
			}
			defer session.close()
			session.start(ctx)

			err = session.sync.Configure(ctx, key, func(config *roomstate.Configuration) {
				if name != "" {
					config.Name = name
				}
				setIfPositive(&config.MaxRecentMessages, maxMessages)
				setIfPositive(&config.MaxMessageSize, maxMessageSize)
				setIfPositive(&config.MaxMembers, maxMembers)
				setIfPositive(&config.MaxUserBans, maxBans)
				setIfPositive(&config.MaxNicknameSize, maxNickname)
			})
			if err != nil {
				return err
			}
			if err := session.publish(ctx, key, wait); err != nil {
				return err
			}
			return session.close()
		},
	}
}

func setIfPositive(field *uint32, value uint32) {
	if value > 0 {
		*field = value
	}
}

func roomRemoveCommand(env *Env) *cli.Command {
	var flags sessionFlags
	return &cli.Command{
		Name:    "remove",
		Summary: "Stop synchronizing a room and delete it locally",
		Usage:   "river room remove <room-key>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("remove", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			key, _, err := parseRoomKey(args, "river room remove <room-key>")
			if err != nil {
				return err
			}
			session, err := env.open(&flags)
			if err != nil {
				return err
			}
			defer session.close()
			session.start(ctx)
			if err := session.sync.RemoveRoom(ctx, key); err != nil {
				return err
			}
			return session.close()
		},
	}
}

func sortedKeys[V any](rooms map[roomstate.RoomKey]V) []roomstate.RoomKey {
	keys := slices.Collect(maps.Keys(rooms))
	slices.SortFunc(keys, func(a, b roomstate.RoomKey) int { return bytes.Compare(a[:], b[:]) })
	return keys
}
