// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/river/cmd/river/cli"
	"github.com/bureau-foundation/river/lib/clock"
	"github.com/bureau-foundation/river/lib/config"
	"github.com/bureau-foundation/river/lib/identity"
	"github.com/bureau-foundation/river/lib/roomstate"
	"github.com/bureau-foundation/river/lib/roomstore"
	"github.com/bureau-foundation/river/lib/sealed"
	"github.com/bureau-foundation/river/lib/synchronizer"
	"github.com/bureau-foundation/river/transport"
)

// Env is what commands write to. Tests substitute buffers.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	// Logger overrides the logger built from the configuration.
	Logger *slog.Logger

	// Dialer overrides the websocket dialer built from the
	// configuration.
	Dialer transport.Dialer
}

// sessionFlags are the flags shared by every command that touches the
// room store.
type sessionFlags struct {
	configPath string
}

func (f *sessionFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "path to river.yaml (default: $"+config.EnvConfig+", then built-in defaults)")
}

func (f *sessionFlags) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case f.configPath != "":
		cfg, err = config.LoadFile(f.configPath)
	case os.Getenv(config.EnvConfig) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
		cfg.ExpandVariables()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// session is an opened store and a synchronizer over it.
type session struct {
	env    *Env
	config *config.Config
	logger *slog.Logger
	sqlite *roomstore.SQLite
	store  *roomstore.Store
	sync   *synchronizer.Synchronizer

	cancel context.CancelFunc
	done   chan error
	closed bool
}

// open loads configuration, opens the store, and builds a
// synchronizer. Call start to run it and close when finished.
func (env *Env) open(flags *sessionFlags) (*session, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	logger := env.Logger
	if logger == nil {
		level, err := cfg.Log.SlogLevel()
		if err != nil {
			return nil, err
		}
		logger = cli.NewCommandLogger(level)
	}

	var storeIdentity *sealed.Identity
	if cfg.Store.IdentityFile != "" {
		storeIdentity, err = sealed.LoadIdentityFile(cfg.Store.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("loading store identity: %w", err)
		}
	}
	compression, err := roomstore.ParseCompressionTag(cfg.Store.Compression)
	if err != nil {
		return nil, err
	}

	database, err := roomstore.OpenSQLite(cfg.Store.Path, clock.Real(), logger)
	if err != nil {
		return nil, err
	}
	store, err := roomstore.New(roomstore.Config{
		Delegate:    database,
		Compression: compression,
		Identity:    storeIdentity,
		Logger:      logger,
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	dialer := env.Dialer
	if dialer == nil {
		dialer = &transport.WebSocketDialer{Options: transport.WebSocketOptions{
			ReadLimit:  cfg.Host.ReadLimit,
			PingPeriod: cfg.Host.PingPeriod.Std(),
			Logger:     logger,
		}}
	}
	syncer, err := synchronizer.New(synchronizer.Config{
		URL:               cfg.Host.URL,
		Dialer:            dialer,
		Logger:            logger,
		Store:             store,
		HandshakeTimeout:  cfg.Host.HandshakeTimeout.Std(),
		ReconnectInterval: cfg.Host.ReconnectInterval.Std(),
		RequestAttempts:   cfg.Host.RequestAttempts,
		RetryBackoff:      cfg.Host.RetryBackoff.Std(),
	})
	if err != nil {
		database.Close()
		return nil, err
	}
	return &session{
		env:    env,
		config: cfg,
		logger: logger,
		sqlite: database,
		store:  store,
		sync:   syncer,
	}, nil
}

// start runs the synchronizer in the background.
func (s *session) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan error, 1)
	go func() { s.done <- s.sync.Run(ctx) }()
}

// close stops the synchronizer, waits for it, and closes the store.
// Later calls do nothing.
func (s *session) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var runErr error
	if s.cancel != nil {
		s.cancel()
		runErr = <-s.done
		if errors.Is(runErr, context.Canceled) {
			runErr = nil
		}
	}
	return errors.Join(runErr, s.sqlite.Close())
}

// signingKey reads the user's signing key file.
func (s *session) signingKey() (ed25519.PrivateKey, error) {
	return readSigningKey(s.config.User.SigningKeyFile)
}

func readSigningKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no signing key at %s; run 'river key generate' first", path)
		}
		return nil, err
	}
	return identity.ParseSigningKey(strings.TrimSpace(string(data)))
}

// nickname returns explicit, or the configured nickname.
func (s *session) nickname(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if s.config.User.Nickname != "" {
		return s.config.User.Nickname, nil
	}
	return "", fmt.Errorf("no nickname: pass --nickname or set user.nickname in the configuration")
}

// publish waits up to timeout for key to be subscribed on the host.
// Local changes are already saved; a timeout only means they have not
// reached the host yet, which the next "river sync" will finish.
func (s *session) publish(ctx context.Context, key roomstate.RoomKey, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	status, err := s.sync.WaitFor(ctx, func(status synchronizer.Status) bool {
		state := status.Rooms[key].State
		return state == synchronizer.Subscribed || state == synchronizer.RoomFailed
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fmt.Fprintf(s.env.Stderr, "saved locally; host not reached within %s (%s)\n",
				timeout, describeConnection(status))
			return nil
		}
		return err
	}
	if room := status.Rooms[key]; room.State == synchronizer.RoomFailed {
		return fmt.Errorf("host rejected room %s: %s", key, room.Reason)
	}
	return nil
}

func parseRoomKey(args []string, usage string) (roomstate.RoomKey, []string, error) {
	if len(args) == 0 {
		return roomstate.RoomKey{}, nil, fmt.Errorf("room key required\n\nUsage: %s", usage)
	}
	key, err := roomstate.ParseRoomKey(args[0])
	if err != nil {
		return roomstate.RoomKey{}, nil, fmt.Errorf("parsing room key %q: %w", args[0], err)
	}
	return key, args[1:], nil
}
