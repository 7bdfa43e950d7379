// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"bytes"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/bureau-foundation/river/lib/codec"
	"github.com/bureau-foundation/river/lib/identity"
)

var baseTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func mustKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	key, err := identity.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	return key
}

func idOf(key ed25519.PrivateKey) identity.MemberID {
	return identity.MemberIDOf(identity.VerifyingKeyOf(key))
}

// room is a test room with its owner key at hand.
type room struct {
	t        *testing.T
	ownerKey ed25519.PrivateKey
	params   Parameters
	state    *RoomState
}

func newRoom(t *testing.T) *room {
	t.Helper()
	ownerKey := mustKey(t)
	state, params, err := NewRoom(ownerKey, "lobby", "owner")
	if err != nil {
		t.Fatalf("NewRoom: %v", err)
	}
	return &room{t: t, ownerKey: ownerKey, params: params, state: state}
}

// apply applies delta and requires a clean merge.
func (r *room) apply(delta *StateDelta) {
	r.t.Helper()
	report, err := r.state.ApplyDelta(r.params, delta)
	if err != nil {
		r.t.Fatalf("ApplyDelta: %v", err)
	}
	if !report.Clean() {
		r.t.Fatalf("ApplyDelta rejected fields: %v", report.Err())
	}
}

// invite adds a new member invited by inviter and returns its key.
func (r *room) invite(inviter ed25519.PrivateKey, nickname string) ed25519.PrivateKey {
	r.t.Helper()
	key := mustKey(r.t)
	member, err := r.state.AuthorMember(r.params, inviter, identity.VerifyingKeyOf(key))
	if err != nil {
		r.t.Fatalf("AuthorMember: %v", err)
	}
	delta, err := r.state.JoinDelta(r.params, member, key, nickname)
	if err != nil {
		r.t.Fatalf("JoinDelta: %v", err)
	}
	r.apply(delta)
	return key
}

func (r *room) post(author ed25519.PrivateKey, content string, at time.Time) *StateDelta {
	r.t.Helper()
	delta, err := r.state.AuthorMessage(r.params, author, content, at)
	if err != nil {
		r.t.Fatalf("AuthorMessage(%q): %v", content, err)
	}
	return delta
}

func (r *room) configure(mutate func(*Configuration)) {
	r.t.Helper()
	delta, err := r.state.AuthorConfiguration(r.params, r.ownerKey, mutate)
	if err != nil {
		r.t.Fatalf("AuthorConfiguration: %v", err)
	}
	r.apply(delta)
}

func encodeState(t *testing.T, state *RoomState) []byte {
	t.Helper()
	data, err := codec.Marshal(state)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

func requireSameState(t *testing.T, a, b *RoomState) {
	t.Helper()
	if !bytes.Equal(encodeState(t, a), encodeState(t, b)) {
		t.Fatalf("replicas diverged:\n a: %+v\n b: %+v", a, b)
	}
}
