// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstore

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/river/lib/codec"
	"github.com/bureau-foundation/river/lib/roomstate"
	"github.com/bureau-foundation/river/lib/sealed"
)

// SnapshotKey is the delegate key the room set is stored under.
const SnapshotKey = "rooms"

const snapshotVersion = 1

var (
	// ErrCorrupt means the stored snapshot could not be decoded.
	ErrCorrupt = errors.New("roomstore: corrupt snapshot")

	// ErrIdentityRequired means the snapshot holds sealed signing keys
	// and the Store was configured without an identity.
	ErrIdentityRequired = errors.New("roomstore: snapshot is sealed and no identity is configured")
)

// Room is one persisted room.
type Room struct {
	Parameters roomstate.Parameters
	State      *roomstate.RoomState
	SigningKey ed25519.PrivateKey
	LastSynced time.Time
}

type record struct {
	Parameters roomstate.Parameters `cbor:"1,keyasint"`
	State      *roomstate.RoomState `cbor:"2,keyasint"`
	// SigningKey is the 32-byte seed, or age ciphertext of the seed
	// when Sealed is set.
	SigningKey []byte `cbor:"3,keyasint"`
	Sealed     bool   `cbor:"4,keyasint,omitempty"`
	LastSynced int64  `cbor:"5,keyasint,omitempty"`
}

type snapshot struct {
	Version uint     `cbor:"1,keyasint"`
	Rooms   []record `cbor:"2,keyasint"`
}

// Config configures a Store.
type Config struct {
	Delegate    Delegate
	Compression CompressionTag

	// Identity, when set, seals signing keys on Save and is required
	// to Load a sealed snapshot.
	Identity *sealed.Identity

	Logger *slog.Logger
}

// Store saves and loads the whole room set through a Delegate.
type Store struct {
	delegate    Delegate
	compression CompressionTag
	identity    *sealed.Identity
	logger      *slog.Logger

	mu sync.Mutex
	// held are stored rooms whose state failed verification on Load.
	// Save writes them back unchanged unless the caller supplies a
	// room with the same key.
	held map[roomstate.RoomKey]record
}

// New returns a Store over cfg.Delegate.
func New(cfg Config) (*Store, error) {
	if cfg.Delegate == nil {
		return nil, fmt.Errorf("roomstore: Delegate is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		delegate:    cfg.Delegate,
		compression: cfg.Compression,
		identity:    cfg.Identity,
		logger:      logger,
		held:        make(map[roomstate.RoomKey]record),
	}, nil
}

// Save replaces the stored room set with rooms.
func (s *Store) Save(ctx context.Context, rooms map[roomstate.RoomKey]*Room) error {
	snap := snapshot{Version: snapshotVersion, Rooms: make([]record, 0, len(rooms))}
	for _, room := range rooms {
		rec := record{
			Parameters: room.Parameters,
			State:      room.State,
			SigningKey: room.SigningKey.Seed(),
		}
		if !room.LastSynced.IsZero() {
			rec.LastSynced = room.LastSynced.UnixNano()
		}
		if s.identity != nil {
			ciphertext, err := sealed.Seal(rec.SigningKey, s.identity.Recipient())
			if err != nil {
				return fmt.Errorf("roomstore: sealing key for %s: %w", room.Parameters.Key(), err)
			}
			rec.SigningKey, rec.Sealed = ciphertext, true
		}
		snap.Rooms = append(snap.Rooms, rec)
	}
	s.mu.Lock()
	for key, rec := range s.held {
		if _, replaced := rooms[key]; !replaced {
			snap.Rooms = append(snap.Rooms, rec)
		}
	}
	s.mu.Unlock()
	slices.SortFunc(snap.Rooms, func(a, b record) int {
		keyA, keyB := a.Parameters.Key(), b.Parameters.Key()
		return bytes.Compare(keyA[:], keyB[:])
	})

	encoded, err := codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("roomstore: encoding snapshot: %w", err)
	}
	framed, err := frame(encoded, s.compression)
	if err != nil {
		return err
	}
	if err := s.delegate.Set(ctx, SnapshotKey, framed); err != nil {
		return fmt.Errorf("roomstore: saving: %w", err)
	}
	s.logger.Debug("room snapshot saved",
		"rooms", len(snap.Rooms),
		"bytes", len(framed),
		"compression", CompressionTag(framed[0]),
	)
	return nil
}

// Load returns the stored room set. A delegate with nothing stored
// yields an empty map. A room whose state no longer verifies is left
// out and logged; it stays in the snapshot across later Saves.
func (s *Store) Load(ctx context.Context) (map[roomstate.RoomKey]*Room, error) {
	framed, found, err := s.delegate.Get(ctx, SnapshotKey)
	if err != nil {
		return nil, fmt.Errorf("roomstore: loading: %w", err)
	}
	rooms := make(map[roomstate.RoomKey]*Room)
	if !found {
		return rooms, nil
	}

	encoded, err := unframe(framed)
	if err != nil {
		return nil, err
	}
	var snap snapshot
	if err := codec.Unmarshal(encoded, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: snapshot version %d", ErrCorrupt, snap.Version)
	}

	held := make(map[roomstate.RoomKey]record)
	for _, rec := range snap.Rooms {
		room, err := s.decodeRecord(rec)
		if err != nil {
			return nil, err
		}
		key := room.Parameters.Key()
		if _, duplicate := rooms[key]; duplicate {
			return nil, fmt.Errorf("%w: room %s stored twice", ErrCorrupt, key)
		}
		if _, duplicate := held[key]; duplicate {
			return nil, fmt.Errorf("%w: room %s stored twice", ErrCorrupt, key)
		}
		if err := room.State.Verify(room.Parameters); err != nil {
			s.logger.Warn("skipping stored room that fails verification",
				"room", key.String(),
				"error", err,
			)
			held[key] = rec
			continue
		}
		rooms[key] = room
	}
	s.mu.Lock()
	s.held = held
	s.mu.Unlock()
	s.logger.Debug("room snapshot loaded", "rooms", len(rooms), "held", len(held))
	return rooms, nil
}

func (s *Store) decodeRecord(rec record) (*Room, error) {
	if len(rec.Parameters.Owner) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: owner key is %d bytes", ErrCorrupt, len(rec.Parameters.Owner))
	}
	key := rec.Parameters.Key()
	if rec.State == nil {
		return nil, fmt.Errorf("%w: room %s has no state", ErrCorrupt, key)
	}

	seed := rec.SigningKey
	if rec.Sealed {
		if s.identity == nil {
			return nil, ErrIdentityRequired
		}
		opened, err := sealed.Open(seed, s.identity)
		if err != nil {
			return nil, fmt.Errorf("%w: unsealing key for %s: %v", ErrCorrupt, key, err)
		}
		seed = opened
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: signing key for %s is %d bytes", ErrCorrupt, key, len(seed))
	}
	room := &Room{
		Parameters: rec.Parameters,
		State:      rec.State,
		SigningKey: ed25519.NewKeyFromSeed(seed),
	}
	if rec.LastSynced != 0 {
		room.LastSynced = time.Unix(0, rec.LastSynced)
	}
	return room, nil
}
