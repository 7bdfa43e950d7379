// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package invite

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bureau-foundation/river/lib/roomstate"
)

// Status is the progress of an accepted invitation.
type Status int

const (
	// Retrieving means the room has been requested but not received.
	Retrieving Status = iota

	// Retrieved means the room arrived and the invitation was bound.
	// It is terminal: later room updates are ordinary merges.
	Retrieved

	// Failed means retrieval gave up; Reason says why.
	Failed
)

func (s Status) String() string {
	switch s {
	case Retrieving:
		return "retrieving"
	case Retrieved:
		return "retrieved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var (
	ErrAlreadyPending = errors.New("invite: invitation for this room already pending")
	ErrNotPending     = errors.New("invite: no pending invitation for this room")
)

// Pending is an accepted invitation waiting for its room.
type Pending struct {
	Invitation        *Invitation
	PreferredNickname string
	Status            Status
	Reason            string
}

// Tracker records accepted invitations by room key. Safe for concurrent
// use.
type Tracker struct {
	mu      sync.Mutex
	pending map[roomstate.RoomKey]*Pending
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[roomstate.RoomKey]*Pending)}
}

// Add registers an accepted invitation. A failed invitation for the
// same room is replaced; one still retrieving is not.
func (t *Tracker) Add(invitation *Invitation, nickname string) (roomstate.RoomKey, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return roomstate.RoomKey{}, roomstate.ErrEmptyNickname
	}
	key := invitation.Key()

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.pending[key]; ok && existing.Status == Retrieving {
		return key, ErrAlreadyPending
	}
	t.pending[key] = &Pending{Invitation: invitation, PreferredNickname: nickname, Status: Retrieving}
	return key, nil
}

// Resolve marks the invitation for key as retrieved and returns it.
// It succeeds at most once per Add: any later call for the same key
// reports false.
func (t *Tracker) Resolve(key roomstate.RoomKey) (Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[key]
	if !ok || entry.Status != Retrieving {
		return Pending{}, false
	}
	entry.Status = Retrieved
	return *entry, true
}

// Fail marks a retrieving invitation as failed.
func (t *Tracker) Fail(key roomstate.RoomKey, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[key]
	if !ok || entry.Status != Retrieving {
		return ErrNotPending
	}
	entry.Status = Failed
	entry.Reason = reason
	return nil
}

// Get returns a copy of the entry for key.
func (t *Tracker) Get(key roomstate.RoomKey) (Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[key]
	if !ok {
		return Pending{}, false
	}
	return *entry, true
}

// Retrieving returns the keys still waiting for their room, sorted.
func (t *Tracker) Retrieving() []roomstate.RoomKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	var keys []roomstate.RoomKey
	for key, entry := range t.pending {
		if entry.Status == Retrieving {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b roomstate.RoomKey) int { return bytes.Compare(a[:], b[:]) })
	return keys
}

// Statuses returns the status of every tracked invitation.
func (t *Tracker) Statuses() map[roomstate.RoomKey]Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	statuses := make(map[roomstate.RoomKey]Status, len(t.pending))
	for key, entry := range t.pending {
		statuses[key] = entry.Status
	}
	return statuses
}

// Remove forgets the invitation for key.
func (t *Tracker) Remove(key roomstate.RoomKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, key)
}
