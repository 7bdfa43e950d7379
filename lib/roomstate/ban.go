// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"bytes"
	"cmp"
	"crypto/ed25519"
	"fmt"
	"slices"

	"github.com/bureau-foundation/river/lib/identity"
)

// UserBan removes BannedUser, and everyone it invited, from the room.
type UserBan struct {
	OwnerMemberID identity.MemberID `cbor:"1,keyasint"`
	BannedAt      int64             `cbor:"2,keyasint"`
	BannedUser    identity.MemberID `cbor:"3,keyasint"`
}

// AuthorizedUserBan is a UserBan signed by the member who issued it.
type AuthorizedUserBan struct {
	Ban       UserBan           `cbor:"1,keyasint"`
	BannedBy  identity.MemberID `cbor:"2,keyasint"`
	Signature []byte            `cbor:"3,keyasint"`
}

// NewAuthorizedUserBan signs ban with the banner's key.
func NewAuthorizedUserBan(ban UserBan, banner ed25519.PrivateKey) (AuthorizedUserBan, error) {
	signature, err := identity.Sign(banner, ban)
	if err != nil {
		return AuthorizedUserBan{}, err
	}
	return AuthorizedUserBan{
		Ban:       ban,
		BannedBy:  identity.MemberIDOf(identity.VerifyingKeyOf(banner)),
		Signature: signature,
	}, nil
}

var banDomainKey = identity.NewDomainKey("river.ban.id")

// BanID is a hash of the ban signature.
type BanID identity.Digest

// ID returns the ban's id.
func (b AuthorizedUserBan) ID() BanID {
	return BanID(identity.ShortHash(banDomainKey, b.Signature))
}

func compareBans(a, b AuthorizedUserBan) int {
	if order := cmp.Compare(a.Ban.BannedAt, b.Ban.BannedAt); order != 0 {
		return order
	}
	aID, bID := a.ID(), b.ID()
	return bytes.Compare(aID[:], bID[:])
}

// Bans holds the most recent bans, oldest first.
type Bans []AuthorizedUserBan

// Banned returns the set of banned member ids.
func (b Bans) Banned() map[identity.MemberID]struct{} {
	set := make(map[identity.MemberID]struct{}, len(b))
	for _, ban := range b {
		set[ban.Ban.BannedUser] = struct{}{}
	}
	return set
}

// Verify checks the ban count, each signature against a current
// participant, and that each banner may ban its target.
func (b Bans) Verify(parent *RoomState, params Parameters) error {
	limit := parent.Configuration.Config.MaxUserBans
	if uint32(len(b)) > limit {
		return fmt.Errorf("%w: %d bans, limit %d", ErrCapacityExceeded, len(b), limit)
	}
	owner := params.OwnerID()
	seen := make(map[BanID]bool, len(b))
	for _, ban := range b {
		if seen[ban.ID()] {
			return fmt.Errorf("ban of %s: %w", ban.Ban.BannedUser, ErrDuplicateRecord)
		}
		seen[ban.ID()] = true

		if ban.Ban.OwnerMemberID != owner {
			return fmt.Errorf("ban of %s: %w", ban.Ban.BannedUser, ErrWrongRoom)
		}
		key, ok := parent.MemberKey(params, ban.BannedBy)
		if !ok {
			return &MemberError{Member: ban.BannedBy, Err: fmt.Errorf("ban issuer: %w", ErrAuthorNotMember)}
		}
		if err := identity.Verify(key, ban.Ban, ban.Signature); err != nil {
			return &MemberError{Member: ban.BannedBy, Err: fmt.Errorf("ban of %s: %w", ban.Ban.BannedUser, err)}
		}
		if err := authorizeBan(parent, owner, ban); err != nil {
			return err
		}
	}
	return nil
}

// authorizeBan checks that a non-owner banner sits above the banned
// user in its invite chain. Bans of users no longer present have no
// chain to check.
func authorizeBan(parent *RoomState, owner identity.MemberID, ban AuthorizedUserBan) error {
	if ban.BannedBy == owner {
		return nil
	}
	if ban.Ban.BannedUser == owner {
		return &MemberError{Member: ban.BannedBy, Err: fmt.Errorf("%w: the owner cannot be banned", ErrBanNotAuthorized)}
	}
	if _, present := parent.Members.Get(ban.Ban.BannedUser); !present {
		return nil
	}
	if slices.Contains(parent.Members.InviteChain(ban.Ban.BannedUser, owner), ban.BannedBy) {
		return nil
	}
	return &MemberError{Member: ban.BannedBy, Err: fmt.Errorf("%w: %s", ErrBanNotAuthorized, ban.Ban.BannedUser)}
}

// BanSet is the summary of Bans.
type BanSet map[BanID]struct{}

// Summarize returns the ids of the bans held.
func (b Bans) Summarize(parent *RoomState, params Parameters) BanSet {
	set := make(BanSet, len(b))
	for _, ban := range b {
		set[ban.ID()] = struct{}{}
	}
	return set
}

// Delta returns bans missing from old.
func (b Bans) Delta(parent *RoomState, params Parameters, old BanSet) ([]AuthorizedUserBan, bool) {
	var delta []AuthorizedUserBan
	for _, ban := range b {
		if _, known := old[ban.ID()]; !known {
			delta = append(delta, ban)
		}
	}
	return delta, len(delta) > 0
}

// ApplyDelta adds new bans and keeps the MaxUserBans most recent.
// Held bans whose issuer is no longer a participant are dropped; new
// bans are kept for Verify to judge.
func (b *Bans) ApplyDelta(parent *RoomState, params Parameters, delta []AuthorizedUserBan) error {
	next := make(Bans, 0, len(*b)+len(delta))
	seen := make(map[BanID]bool, len(*b)+len(delta))
	for _, ban := range *b {
		if seen[ban.ID()] || !parent.IsParticipant(params, ban.BannedBy) {
			continue
		}
		seen[ban.ID()] = true
		next = append(next, ban)
	}
	for _, ban := range delta {
		if seen[ban.ID()] {
			continue
		}
		seen[ban.ID()] = true
		next = append(next, ban)
	}
	slices.SortFunc(next, compareBans)
	if excess := len(next) - int(parent.Configuration.Config.MaxUserBans); excess > 0 {
		next = slices.Clone(next[excess:])
	}
	*b = next
	return nil
}
