// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/river/lib/clock"
	"github.com/bureau-foundation/river/lib/codec"
	"github.com/bureau-foundation/river/lib/identity"
	"github.com/bureau-foundation/river/lib/roomstate"
	"github.com/bureau-foundation/river/lib/sealed"
)

func newTestRoom(t *testing.T, name string) *Room {
	t.Helper()
	key, err := identity.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	state, params, err := roomstate.NewRoom(key, name, "owner")
	if err != nil {
		t.Fatalf("NewRoom: %v", err)
	}
	delta, err := state.AuthorMessage(params, key, strings.Repeat("hello river ", 20), time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("AuthorMessage: %v", err)
	}
	if _, err := state.ApplyDelta(params, delta); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	return &Room{
		Parameters: params,
		State:      state,
		SigningKey: key,
		LastSynced: time.Unix(1700000100, 42),
	}
}

func roomSet(rooms ...*Room) map[roomstate.RoomKey]*Room {
	set := make(map[roomstate.RoomKey]*Room, len(rooms))
	for _, room := range rooms {
		set[room.Parameters.Key()] = room
	}
	return set
}

func encodeState(t *testing.T, state *roomstate.RoomState) []byte {
	t.Helper()
	encoded, err := codec.Marshal(state)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return encoded
}

func requireSameRooms(t *testing.T, got, want map[roomstate.RoomKey]*Room) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("loaded %d rooms, want %d", len(got), len(want))
	}
	for key, expected := range want {
		loaded, ok := got[key]
		if !ok {
			t.Fatalf("room %s missing after load", key)
		}
		if !loaded.SigningKey.Equal(expected.SigningKey) {
			t.Errorf("room %s: signing key differs", key)
		}
		if !loaded.LastSynced.Equal(expected.LastSynced) {
			t.Errorf("room %s: LastSynced = %v, want %v", key, loaded.LastSynced, expected.LastSynced)
		}
		if !bytes.Equal(encodeState(t, loaded.State), encodeState(t, expected.State)) {
			t.Errorf("room %s: state differs after round trip", key)
		}
	}
}

func TestMemoryDelegate(t *testing.T) {
	ctx := context.Background()
	memory := NewMemory()

	if _, found, err := memory.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("Get(missing) = found %v, err %v", found, err)
	}
	value := []byte("one")
	if err := memory.Set(ctx, "key", value); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value[0] = 'X'
	got, found, err := memory.Get(ctx, "key")
	if err != nil || !found || string(got) != "one" {
		t.Fatalf("Get = %q, %v, %v; want one, true, nil", got, found, err)
	}
}

func TestSQLiteDelegate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "river.db")

	store, err := OpenSQLite(path, clock.Fake(time.Unix(1700000000, 0)), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, found, err := store.Get(ctx, "rooms"); err != nil || found {
		t.Fatalf("Get on empty database = found %v, err %v", found, err)
	}
	if err := store.Set(ctx, "rooms", []byte("first")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "rooms", []byte("second")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if err := store.Set(ctx, "empty", nil); err != nil {
		t.Fatalf("Set empty: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLite(path, nil, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, found, err := reopened.Get(ctx, "rooms")
	if err != nil || !found || string(got) != "second" {
		t.Fatalf("Get after reopen = %q, %v, %v; want second", got, found, err)
	}
	got, found, err = reopened.Get(ctx, "empty")
	if err != nil || !found || len(got) != 0 {
		t.Fatalf("Get(empty) = %q, %v, %v; want empty and found", got, found, err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("river room state "), 200)
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			framed, err := frame(compressible, tag)
			if err != nil {
				t.Fatalf("frame: %v", err)
			}
			if CompressionTag(framed[0]) != tag {
				t.Errorf("stored tag = %s, want %s", CompressionTag(framed[0]), tag)
			}
			if tag != CompressionNone && len(framed) >= len(compressible) {
				t.Errorf("%s did not shrink compressible input (%d >= %d)", tag, len(framed), len(compressible))
			}
			got, err := unframe(framed)
			if err != nil {
				t.Fatalf("unframe: %v", err)
			}
			if !bytes.Equal(got, compressible) {
				t.Error("round trip changed the data")
			}
		})
	}
}

func TestFrameFallsBackForIncompressibleData(t *testing.T) {
	data := []byte{0x01, 0x9f}
	framed, err := frame(data, CompressionZstd)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if CompressionTag(framed[0]) != CompressionNone {
		t.Errorf("tag = %s, want none for incompressible input", CompressionTag(framed[0]))
	}
}

func TestUnframeRejectsDamage(t *testing.T) {
	framed, err := frame(bytes.Repeat([]byte("abc"), 100), CompressionLZ4)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	cases := map[string][]byte{
		"empty":       nil,
		"unknown tag": append([]byte{9}, framed[1:]...),
		"truncated":   framed[:len(framed)-4],
		"no length":   {byte(CompressionNone)},
	}
	for name, input := range cases {
		if _, err := unframe(input); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: unframe error = %v, want ErrCorrupt", name, err)
		}
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		tag, err := ParseCompressionTag(name)
		if err != nil {
			t.Fatalf("ParseCompressionTag(%q): %v", name, err)
		}
		if tag.String() != name {
			t.Errorf("ParseCompressionTag(%q).String() = %q", name, tag)
		}
	}
	if _, err := ParseCompressionTag("gzip"); err == nil {
		t.Error("ParseCompressionTag(gzip) succeeded")
	}
}

func TestStoreLoadEmpty(t *testing.T) {
	store, err := New(Config{Delegate: NewMemory()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rooms, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rooms) != 0 {
		t.Errorf("Load on empty delegate returned %d rooms", len(rooms))
	}
}

func TestStoreRoundTripMemory(t *testing.T) {
	ctx := context.Background()
	store, err := New(Config{Delegate: NewMemory(), Compression: CompressionLZ4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := roomSet(newTestRoom(t, "one"), newTestRoom(t, "two"))
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	requireSameRooms(t, got, want)
}

func TestStoreRoundTripSQLiteZstdSealed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "river.db")
	ageIdentity, err := sealed.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}

	delegate, err := OpenSQLite(path, nil, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer delegate.Close()

	store, err := New(Config{Delegate: delegate, Compression: CompressionZstd, Identity: ageIdentity})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	room := newTestRoom(t, "sealed")
	want := roomSet(room)
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, found, err := delegate.Get(ctx, SnapshotKey)
	if err != nil || !found {
		t.Fatalf("raw Get = %v, %v", found, err)
	}
	if CompressionTag(raw[0]) != CompressionZstd {
		t.Errorf("snapshot tag = %s, want zstd", CompressionTag(raw[0]))
	}
	plain, err := unframe(raw)
	if err != nil {
		t.Fatalf("unframe: %v", err)
	}
	if bytes.Contains(plain, room.SigningKey.Seed()) {
		t.Error("stored snapshot contains the plaintext signing key")
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	requireSameRooms(t, got, want)

	unsealed, err := New(Config{Delegate: delegate})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := unsealed.Load(ctx); !errors.Is(err, ErrIdentityRequired) {
		t.Errorf("Load without identity: %v, want ErrIdentityRequired", err)
	}

	other, err := sealed.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	wrongKey, err := New(Config{Delegate: delegate, Identity: other})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := wrongKey.Load(ctx); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load with the wrong identity: %v, want ErrCorrupt", err)
	}
}

func TestStoreLoadRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	memory := NewMemory()
	framed, err := frame([]byte("not cbor at all"), CompressionNone)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if err := memory.Set(ctx, SnapshotKey, framed); err != nil {
		t.Fatalf("Set: %v", err)
	}
	store, err := New(Config{Delegate: memory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load: %v, want ErrCorrupt", err)
	}
}

func TestStoreHoldsRoomsThatFailVerification(t *testing.T) {
	ctx := context.Background()
	memory := NewMemory()
	store, err := New(Config{Delegate: memory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	good := newTestRoom(t, "good")
	tampered := newTestRoom(t, "tampered")
	tampered.State.Messages[0].Message.Content = "rewritten"
	if err := store.Save(ctx, roomSet(good, tampered)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	requireSameRooms(t, got, roomSet(good))

	// Saving the loaded set keeps the held room in the snapshot.
	if err := store.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _, err := memory.Get(ctx, SnapshotKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	plain, err := unframe(raw)
	if err != nil {
		t.Fatalf("unframe: %v", err)
	}
	var snap snapshot
	if err := codec.Unmarshal(plain, &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(snap.Rooms) != 2 {
		t.Fatalf("snapshot holds %d rooms after Save, want 2", len(snap.Rooms))
	}

	fresh, err := New(Config{Delegate: memory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	again, err := fresh.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	requireSameRooms(t, again, roomSet(good))
}

func TestNewRequiresDelegate(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without a delegate succeeded")
	}
}
