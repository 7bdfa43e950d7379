// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/river/cmd/river/cli"
	"github.com/bureau-foundation/river/lib/identity"
	"github.com/bureau-foundation/river/lib/sealed"
)

func keyCommand(env *Env) *cli.Command {
	return &cli.Command{
		Name:    "key",
		Summary: "Manage the local signing key",
		Subcommands: []*cli.Command{
			keyGenerateCommand(env),
			keyShowCommand(env),
		},
	}
}

func keyGenerateCommand(env *Env) *cli.Command {
	var flags sessionFlags
	var force, storeIdentity bool
	return &cli.Command{
		Name:    "generate",
		Summary: "Create a signing key (and optionally the store identity)",
		Description: `Generate an Ed25519 signing key and write it to user.signing_key_file.
With --store-identity, also generate the age identity named by
store.identity_file, which seals room signing keys in the store.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("generate", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&force, "force", false, "overwrite an existing signing key")
			flagSet.BoolVar(&storeIdentity, "store-identity", false, "also create store.identity_file")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if err := cfg.EnsurePaths(); err != nil {
				return err
			}

			key, err := identity.GenerateSigningKey()
			if err != nil {
				return err
			}
			mode := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}
			file, err := os.OpenFile(cfg.User.SigningKeyFile, mode, 0o600)
			if err != nil {
				if errors.Is(err, os.ErrExist) {
					return fmt.Errorf("%s already exists (use --force to replace it)", cfg.User.SigningKeyFile)
				}
				return err
			}
			if _, err := fmt.Fprintln(file, identity.EncodeSigningKey(key)); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}

			style := newStyles(env.Stdout)
			fmt.Fprintf(env.Stdout, "%s %s\n", style.heading.Render("signing key:"), cfg.User.SigningKeyFile)
			fmt.Fprintf(env.Stdout, "%s %s\n", style.heading.Render("verifying key:"),
				style.key.Render(identity.EncodeVerifyingKey(identity.VerifyingKeyOf(key))))

			if storeIdentity {
				if cfg.Store.IdentityFile == "" {
					return fmt.Errorf("--store-identity requires store.identity_file in the configuration")
				}
				sealing, err := sealed.GenerateIdentity()
				if err != nil {
					return err
				}
				if err := sealed.WriteIdentityFile(cfg.Store.IdentityFile, sealing); err != nil {
					return err
				}
				fmt.Fprintf(env.Stdout, "%s %s (%s)\n", style.heading.Render("store identity:"),
					cfg.Store.IdentityFile, sealing.Recipient())
			}
			return nil
		},
	}
}

func keyShowCommand(env *Env) *cli.Command {
	var flags sessionFlags
	return &cli.Command{
		Name:    "show",
		Summary: "Print the verifying key and member id",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(context.Context, []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			key, err := readSigningKey(cfg.User.SigningKeyFile)
			if err != nil {
				return err
			}
			verifying := identity.VerifyingKeyOf(key)
			style := newStyles(env.Stdout)
			fmt.Fprintf(env.Stdout, "%s %s\n", style.heading.Render("verifying key:"),
				style.key.Render(identity.EncodeVerifyingKey(verifying)))
			fmt.Fprintf(env.Stdout, "%s %s\n", style.heading.Render("member id:"), identity.MemberIDOf(verifying))
			return nil
		},
	}
}
