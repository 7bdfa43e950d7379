// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package synchronizer

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/bureau-foundation/river/lib/hostproto"
	"github.com/bureau-foundation/river/lib/identity"
	"github.com/bureau-foundation/river/lib/invite"
	"github.com/bureau-foundation/river/lib/roomstate"
)

// Snapshot is a copy of one room taken inside the loop. Its State may
// be read freely.
type Snapshot struct {
	Key        roomstate.RoomKey
	Parameters roomstate.Parameters
	State      *roomstate.RoomState
	Self       identity.MemberID
	Sync       RoomStatus
}

func (r *room) snapshot() Snapshot {
	return Snapshot{
		Key:        r.params.Key(),
		Parameters: r.params,
		State:      r.state.Clone(),
		Self:       identity.MemberIDOf(identity.VerifyingKeyOf(r.signingKey)),
		Sync:       RoomStatus{State: r.sync, Reason: r.reason, LastSynced: r.lastSynced},
	}
}

func (s *Synchronizer) lookup(key roomstate.RoomKey) (*room, error) {
	r, ok := s.rooms[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, key)
	}
	return r, nil
}

// add inserts a room and starts bring-up when connected.
func (s *Synchronizer) add(ctx context.Context, r *room) error {
	key := r.params.Key()
	if _, exists := s.rooms[key]; exists {
		return fmt.Errorf("%w: %s", ErrRoomExists, key)
	}
	if err := r.state.Verify(r.params); err != nil {
		return err
	}
	self := identity.MemberIDOf(identity.VerifyingKeyOf(r.signingKey))
	if !r.state.IsParticipant(r.params, self) {
		return fmt.Errorf("%w: signing key is not in room %s", roomstate.ErrAuthorNotMember, key)
	}
	s.rooms[key] = r
	s.logger.Info("room added", "room", key)
	s.persist(ctx)
	if s.conn != nil {
		s.put(ctx, r)
	}
	return nil
}

// AddRoom adds an existing room that signingKey participates in.
func (s *Synchronizer) AddRoom(ctx context.Context, params roomstate.Parameters, state *roomstate.RoomState, signingKey ed25519.PrivateKey) error {
	state = state.Clone()
	return s.do(ctx, func(ctx context.Context) error {
		return s.add(ctx, &room{params: params, state: state, signingKey: signingKey})
	})
}

// CreateRoom creates a room owned by ownerKey and adds it.
func (s *Synchronizer) CreateRoom(ctx context.Context, ownerKey ed25519.PrivateKey, name, nickname string) (roomstate.RoomKey, error) {
	state, params, err := roomstate.NewRoom(ownerKey, name, nickname)
	if err != nil {
		return roomstate.RoomKey{}, err
	}
	err = s.do(ctx, func(ctx context.Context) error {
		return s.add(ctx, &room{params: params, state: state, signingKey: ownerKey})
	})
	return params.Key(), err
}

// RemoveRoom stops synchronizing key and forgets any invitation for
// it. Responses that arrive for it later are ignored.
func (s *Synchronizer) RemoveRoom(ctx context.Context, key roomstate.RoomKey) error {
	return s.do(ctx, func(ctx context.Context) error {
		_, known := s.rooms[key]
		_, invited := s.invites.Get(key)
		if !known && !invited {
			return fmt.Errorf("%w: %s", ErrUnknownRoom, key)
		}
		delete(s.rooms, key)
		s.invites.Remove(key)
		s.logger.Info("room removed", "room", key)
		s.persist(ctx)
		return nil
	})
}

// PostMessage signs content as the local member and publishes it.
func (s *Synchronizer) PostMessage(ctx context.Context, key roomstate.RoomKey, content string) error {
	return s.do(ctx, func(ctx context.Context) error {
		r, err := s.lookup(key)
		if err != nil {
			return err
		}
		delta, err := r.state.AuthorMessage(r.params, r.signingKey, content, s.clock.Now())
		if err != nil {
			return err
		}
		return s.applyLocal(ctx, r, delta)
	})
}

// RenameSelf publishes a new nickname for the local member.
func (s *Synchronizer) RenameSelf(ctx context.Context, key roomstate.RoomKey, nickname string) error {
	return s.do(ctx, func(ctx context.Context) error {
		r, err := s.lookup(key)
		if err != nil {
			return err
		}
		delta, err := r.state.AuthorNickname(r.params, r.signingKey, nickname)
		if err != nil {
			return err
		}
		return s.applyLocal(ctx, r, delta)
	})
}

// BanMember bans target from the room.
func (s *Synchronizer) BanMember(ctx context.Context, key roomstate.RoomKey, target identity.MemberID) error {
	return s.do(ctx, func(ctx context.Context) error {
		r, err := s.lookup(key)
		if err != nil {
			return err
		}
		delta, err := r.state.AuthorBan(r.params, r.signingKey, target, s.clock.Now())
		if err != nil {
			return err
		}
		return s.applyLocal(ctx, r, delta)
	})
}

// Configure changes the room configuration. Only the owner may.
func (s *Synchronizer) Configure(ctx context.Context, key roomstate.RoomKey, mutate func(*roomstate.Configuration)) error {
	return s.do(ctx, func(ctx context.Context) error {
		r, err := s.lookup(key)
		if err != nil {
			return err
		}
		delta, err := r.state.AuthorConfiguration(r.params, r.signingKey, mutate)
		if err != nil {
			return err
		}
		return s.applyLocal(ctx, r, delta)
	})
}

// InviteMember creates an invitation to the room. The room does not
// change until the invitee joins.
func (s *Synchronizer) InviteMember(ctx context.Context, key roomstate.RoomKey) (*invite.Invitation, error) {
	var invitation *invite.Invitation
	err := s.do(ctx, func(ctx context.Context) error {
		r, err := s.lookup(key)
		if err != nil {
			return err
		}
		invitation, err = invite.Create(r.state, r.params, r.signingKey)
		return err
	})
	return invitation, err
}

// AcceptInvitation registers invitation and requests its room. The
// room joins the set once the host returns it; watch Status for the
// outcome.
func (s *Synchronizer) AcceptInvitation(ctx context.Context, invitation *invite.Invitation, nickname string) (roomstate.RoomKey, error) {
	key := invitation.Key()
	err := s.do(ctx, func(ctx context.Context) error {
		if _, exists := s.rooms[key]; exists {
			return fmt.Errorf("%w: %s", ErrRoomExists, key)
		}
		if _, err := s.invites.Add(invitation, nickname); err != nil {
			return err
		}
		s.logger.Info("invitation pending", "room", key)
		if s.conn != nil {
			s.send(ctx, hostproto.NewGet(key), true)
		}
		return nil
	})
	return key, err
}

// Room returns a snapshot of one room.
func (s *Synchronizer) Room(ctx context.Context, key roomstate.RoomKey) (Snapshot, error) {
	var snapshot Snapshot
	err := s.do(ctx, func(context.Context) error {
		r, err := s.lookup(key)
		if err != nil {
			return err
		}
		snapshot = r.snapshot()
		return nil
	})
	return snapshot, err
}

// Rooms returns snapshots of every room, ordered by key.
func (s *Synchronizer) Rooms(ctx context.Context) ([]Snapshot, error) {
	var snapshots []Snapshot
	err := s.do(ctx, func(context.Context) error {
		for _, key := range s.sortedRoomKeys() {
			snapshots = append(snapshots, s.rooms[key].snapshot())
		}
		return nil
	})
	return snapshots, err
}

// WaitFor blocks until the published status satisfies condition or ctx
// ends.
func (s *Synchronizer) WaitFor(ctx context.Context, condition func(Status) bool) (Status, error) {
	updates, cancel := s.status.Subscribe()
	defer cancel()
	for {
		select {
		case status := <-updates:
			if condition(status) {
				return status, nil
			}
		case <-ctx.Done():
			return s.status.Get(), ctx.Err()
		}
	}
}

