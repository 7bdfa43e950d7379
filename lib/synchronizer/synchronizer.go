// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package synchronizer

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/bureau-foundation/river/lib/clock"
	"github.com/bureau-foundation/river/lib/invite"
	"github.com/bureau-foundation/river/lib/roomstate"
	"github.com/bureau-foundation/river/lib/roomstore"
	"github.com/bureau-foundation/river/transport"
)

// Config configures a Synchronizer. URL and Dialer are required.
type Config struct {
	// URL is the host address handed to Dialer.
	URL    string
	Dialer transport.Dialer

	// Clock drives every timer. Defaults to the real clock.
	Clock  clock.Clock
	Logger *slog.Logger

	// Store, when set, is loaded when Run starts and saved after
	// every change to a room.
	Store *roomstore.Store

	// HandshakeTimeout bounds a dial. Default: 5s.
	HandshakeTimeout time.Duration

	// ReconnectInterval is the wait after a connection failure.
	// Default: 3s.
	ReconnectInterval time.Duration

	// RequestAttempts is how many times a request is sent before its
	// room (or invitation) is marked failed. Default: 3.
	RequestAttempts int

	// RetryBackoff separates attempts. Default: 500ms.
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 3 * time.Second
	}
	if c.RequestAttempts <= 0 {
		c.RequestAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// Synchronizer owns a set of rooms and keeps them synchronized with a
// host. Create one with New and start it with Run; every other method
// may be called from any goroutine.
type Synchronizer struct {
	config Config
	clock  clock.Clock
	logger *slog.Logger

	requests chan func(context.Context)
	wakeups  chan func(context.Context)
	frames   chan inboundFrame
	dials    chan dialResult
	done     chan struct{}

	status *Cell[Status]

	// Everything below is owned by the Run goroutine.

	rooms   map[roomstate.RoomKey]*room
	invites *invite.Tracker
	loaded  bool

	conn       transport.Conn
	connState  ConnectionState
	connReason string

	// connGeneration changes whenever a connection is established or
	// torn down. Frames and retries stamped with an older value are
	// ignored.
	connGeneration uint64

	// dialGeneration identifies the current dial attempt.
	dialGeneration uint64
	dialCancel     context.CancelFunc
	handshake      *clock.Timer
	reconnect      *clock.Timer
}

// room is one synchronized room.
type room struct {
	params     roomstate.Parameters
	state      *roomstate.RoomState
	signingKey ed25519.PrivateKey

	sync   SyncState
	reason string

	// dirty records local changes made before the room reached
	// Subscribed; they are published as a full state on arrival.
	dirty bool

	// inflight is the request bring-up or an update is waiting on.
	inflight   *outbound
	lastSynced time.Time
}

// New returns a Synchronizer. It does nothing until Run is called.
func New(config Config) (*Synchronizer, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("synchronizer: URL is required")
	}
	if config.Dialer == nil {
		return nil, fmt.Errorf("synchronizer: Dialer is required")
	}
	config = config.withDefaults()
	s := &Synchronizer{
		config:   config,
		clock:    config.Clock,
		logger:   config.Logger,
		requests: make(chan func(context.Context)),
		wakeups:  make(chan func(context.Context), 64),
		frames:   make(chan inboundFrame, 64),
		dials:    make(chan dialResult),
		done:     make(chan struct{}),
		rooms:    make(map[roomstate.RoomKey]*room),
		invites:  invite.NewTracker(),
	}
	s.status = NewCell(s.snapshot())
	return s, nil
}

// Status returns the cell the synchronizer publishes its progress to.
func (s *Synchronizer) Status() *Cell[Status] {
	return s.status
}

// Run loads persisted rooms, connects, and processes events until ctx
// is cancelled. It returns ctx's error, or the error from loading the
// store. Run must be called at most once.
func (s *Synchronizer) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.shutdown()

	if err := s.load(ctx); err != nil {
		return err
	}
	s.connect(ctx)
	s.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case request := <-s.requests:
			request(ctx)
		case result := <-s.dials:
			s.handleDial(ctx, result)
		case frame := <-s.frames:
			s.handleFrame(ctx, frame)
		case wakeup := <-s.wakeups:
			wakeup(ctx)
		}
		s.publish()
	}
}

func (s *Synchronizer) shutdown() {
	if s.dialCancel != nil {
		s.dialCancel()
	}
	stopTimer(s.handshake)
	stopTimer(s.reconnect)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connState = Disconnected
	s.connReason = ""
	s.publish()
}

func stopTimer(timer *clock.Timer) {
	if timer != nil {
		timer.Stop()
	}
}

// after runs fn on the loop goroutine once d has elapsed.
func (s *Synchronizer) after(d time.Duration, fn func(context.Context)) *clock.Timer {
	return s.clock.AfterFunc(d, func() {
		select {
		case s.wakeups <- fn:
		case <-s.done:
		}
	})
}

// do runs fn on the loop goroutine and returns its error.
func (s *Synchronizer) do(ctx context.Context, fn func(context.Context) error) error {
	reply := make(chan error, 1)
	request := func(loopCtx context.Context) { reply <- fn(loopCtx) }
	select {
	case s.requests <- request:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		// The request may have run just before Run returned.
		select {
		case err := <-reply:
			return err
		default:
			return ErrStopped
		}
	}
}

func (s *Synchronizer) load(ctx context.Context) error {
	if s.config.Store == nil {
		s.loaded = true
		return nil
	}
	stored, err := s.config.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("synchronizer: loading rooms: %w", err)
	}
	for key, saved := range stored {
		s.rooms[key] = &room{
			params:     saved.Parameters,
			state:      saved.State,
			signingKey: saved.SigningKey,
			lastSynced: saved.LastSynced,
		}
	}
	s.loaded = true
	s.logger.Info("rooms loaded", "rooms", len(stored))
	return nil
}

// persist saves the room set. Failures are logged: the in-memory state
// stays authoritative and the next change saves again.
func (s *Synchronizer) persist(ctx context.Context) {
	if s.config.Store == nil {
		return
	}
	saved := make(map[roomstate.RoomKey]*roomstore.Room, len(s.rooms))
	for key, r := range s.rooms {
		saved[key] = &roomstore.Room{
			Parameters: r.params,
			State:      r.state,
			SigningKey: r.signingKey,
			LastSynced: r.lastSynced,
		}
	}
	if err := s.config.Store.Save(ctx, saved); err != nil {
		s.logger.Error("saving rooms failed", "error", err)
	}
}

func (s *Synchronizer) publish() {
	s.status.Set(s.snapshot())
}

func (s *Synchronizer) snapshot() Status {
	status := Status{
		Loaded:      s.loaded,
		Connection:  s.connState,
		Reason:      s.connReason,
		Rooms:       make(map[roomstate.RoomKey]RoomStatus, len(s.rooms)),
		Invitations: make(map[roomstate.RoomKey]InvitationStatus),
	}
	for key, r := range s.rooms {
		status.Rooms[key] = RoomStatus{State: r.sync, Reason: r.reason, LastSynced: r.lastSynced}
	}
	for key := range s.invites.Statuses() {
		if pending, ok := s.invites.Get(key); ok {
			status.Invitations[key] = InvitationStatus{Status: pending.Status, Reason: pending.Reason}
		}
	}
	return status
}

// sortedRoomKeys returns the room keys in byte order so bring-up sends
// requests in a stable order.
func (s *Synchronizer) sortedRoomKeys() []roomstate.RoomKey {
	return slices.SortedFunc(maps.Keys(s.rooms), func(a, b roomstate.RoomKey) int {
		return bytes.Compare(a[:], b[:])
	})
}
