// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"crypto/ed25519"
	"fmt"
	"slices"

	"github.com/bureau-foundation/river/lib/identity"
)

// Member is one participant other than the owner. InvitedBy is the
// owner's id for members the owner invited directly.
type Member struct {
	OwnerMemberID identity.MemberID `cbor:"1,keyasint"`
	InvitedBy     identity.MemberID `cbor:"2,keyasint"`
	VerifyingKey  ed25519.PublicKey `cbor:"3,keyasint"`
}

// ID returns the member's id, derived from its verifying key.
func (m Member) ID() identity.MemberID {
	return identity.MemberIDOf(m.VerifyingKey)
}

// AuthorizedMember is a Member signed by its inviter.
type AuthorizedMember struct {
	Member    Member `cbor:"1,keyasint"`
	Signature []byte `cbor:"2,keyasint"`
}

// NewAuthorizedMember signs member with the inviter's key.
func NewAuthorizedMember(member Member, inviter ed25519.PrivateKey) (AuthorizedMember, error) {
	if member.InvitedBy != identity.MemberIDOf(identity.VerifyingKeyOf(inviter)) {
		return AuthorizedMember{}, fmt.Errorf("%w: inviter key is not InvitedBy", ErrSigningKeyMismatch)
	}
	signature, err := identity.Sign(inviter, member)
	if err != nil {
		return AuthorizedMember{}, err
	}
	return AuthorizedMember{Member: member, Signature: signature}, nil
}

// ID returns the member's id.
func (m AuthorizedMember) ID() identity.MemberID { return m.Member.ID() }

// VerifySignature checks the signature against the inviter's key.
func (m AuthorizedMember) VerifySignature(inviter ed25519.PublicKey) error {
	return identity.Verify(inviter, m.Member, m.Signature)
}

// MemberSet is the summary of Members.
type MemberSet map[identity.MemberID]struct{}

// MembersDelta adds and removes members. Both lists are sorted by id.
type MembersDelta struct {
	Added   []AuthorizedMember  `cbor:"1,keyasint,omitempty"`
	Removed []identity.MemberID `cbor:"2,keyasint,omitempty"`
}

// Members is the member list, sorted by id.
type Members []AuthorizedMember

// Get returns the member with the given id.
func (m Members) Get(id identity.MemberID) (AuthorizedMember, bool) {
	for _, member := range m {
		if member.ID() == id {
			return member, true
		}
	}
	return AuthorizedMember{}, false
}

func (m Members) index() map[identity.MemberID]AuthorizedMember {
	index := make(map[identity.MemberID]AuthorizedMember, len(m))
	for _, member := range m {
		index[member.ID()] = member
	}
	return index
}

// InviteChain returns the ids from the member's inviter up to, but not
// including, the owner. It stops early at a missing inviter or a cycle.
func (m Members) InviteChain(id identity.MemberID, owner identity.MemberID) []identity.MemberID {
	index := m.index()
	var chain []identity.MemberID
	seen := map[identity.MemberID]bool{id: true}
	current, ok := index[id]
	for ok && current.Member.InvitedBy != owner {
		next := current.Member.InvitedBy
		if seen[next] {
			break
		}
		seen[next] = true
		chain = append(chain, next)
		current, ok = index[next]
	}
	return chain
}

// Verify checks the member limit and every invite chain back to the owner.
func (m Members) Verify(parent *RoomState, params Parameters) error {
	owner := params.OwnerID()
	if limit := parent.Configuration.Config.MaxMembers; uint32(len(m)) > limit {
		return fmt.Errorf("%w: %d members, limit %d", ErrCapacityExceeded, len(m), limit)
	}

	index := make(map[identity.MemberID]AuthorizedMember, len(m))
	for _, member := range m {
		id := member.ID()
		if id == owner {
			return &MemberError{Member: id, Err: ErrOwnerInMembers}
		}
		if _, exists := index[id]; exists {
			return &MemberError{Member: id, Err: ErrDuplicateRecord}
		}
		index[id] = member
	}

	banned := parent.Bans.Banned()
	verified := make(map[identity.MemberID]bool, len(m))
	for _, member := range m {
		id := member.ID()
		if member.Member.OwnerMemberID != owner {
			return &MemberError{Member: id, Err: ErrWrongRoom}
		}
		if _, isBanned := banned[id]; isBanned {
			return &MemberError{Member: id, Err: ErrMemberBanned}
		}
		if err := verifyChain(member, index, params, verified); err != nil {
			return &MemberError{Member: id, Err: err}
		}
	}
	return nil
}

// verifyChain checks every signature from member up to the owner,
// skipping links already in verified.
func verifyChain(member AuthorizedMember, index map[identity.MemberID]AuthorizedMember, params Parameters, verified map[identity.MemberID]bool) error {
	owner := params.OwnerID()
	var walked []identity.MemberID
	seen := make(map[identity.MemberID]bool)
	current := member
	for {
		id := current.ID()
		if verified[id] {
			break
		}
		if seen[id] {
			return fmt.Errorf("%w: cycle at %s", ErrInviteChainBroken, id)
		}
		seen[id] = true

		if current.Member.InvitedBy == owner {
			if err := current.VerifySignature(params.Owner); err != nil {
				return fmt.Errorf("invited by owner: %w", err)
			}
			walked = append(walked, id)
			break
		}
		inviter, ok := index[current.Member.InvitedBy]
		if !ok {
			return fmt.Errorf("%w: %s invited %s", ErrInviterNotFound, current.Member.InvitedBy, id)
		}
		if err := current.VerifySignature(inviter.Member.VerifyingKey); err != nil {
			return fmt.Errorf("invited by %s: %w", inviter.ID(), err)
		}
		walked = append(walked, id)
		current = inviter
	}
	for _, id := range walked {
		verified[id] = true
	}
	return nil
}

// Summarize returns the set of present member ids.
func (m Members) Summarize(parent *RoomState, params Parameters) MemberSet {
	set := make(MemberSet, len(m))
	for _, member := range m {
		set[member.ID()] = struct{}{}
	}
	return set
}

// Delta lists members absent from old and ids in old that are gone.
func (m Members) Delta(parent *RoomState, params Parameters, old MemberSet) (MembersDelta, bool) {
	present := m.Summarize(parent, params)
	var delta MembersDelta
	for _, member := range m {
		if _, known := old[member.ID()]; !known {
			delta.Added = append(delta.Added, member)
		}
	}
	for id := range old {
		if _, still := present[id]; !still {
			delta.Removed = append(delta.Removed, id)
		}
	}
	if len(delta.Added) == 0 && len(delta.Removed) == 0 {
		return MembersDelta{}, false
	}
	slices.SortFunc(delta.Added, func(a, b AuthorizedMember) int { return a.ID().Compare(b.ID()) })
	slices.SortFunc(delta.Removed, identity.MemberID.Compare)
	return delta, true
}

// ApplyDelta removes and adds members, drops banned members together
// with everyone they invited, and evicts down to MaxMembers. Added
// members are not verified here; the aggregate verifies after applying.
func (m *Members) ApplyDelta(parent *RoomState, params Parameters, delta MembersDelta) error {
	owner := params.OwnerID()
	removed := make(map[identity.MemberID]bool, len(delta.Removed))
	for _, id := range delta.Removed {
		removed[id] = true
	}

	next := make(Members, 0, len(*m)+len(delta.Added))
	present := make(map[identity.MemberID]bool, len(*m))
	for _, member := range *m {
		if removed[member.ID()] {
			continue
		}
		next = append(next, member)
		present[member.ID()] = true
	}
	for _, member := range delta.Added {
		id := member.ID()
		if id == owner || present[id] {
			continue
		}
		next = append(next, member)
		present[id] = true
	}

	next = next.withoutBanned(parent.Bans.Banned(), owner)
	slices.SortFunc(next, func(a, b AuthorizedMember) int { return a.ID().Compare(b.ID()) })
	*m = next.evict(owner, int(parent.Configuration.Config.MaxMembers))
	return nil
}

// withoutBanned returns the members that are neither banned nor
// invited, directly or transitively, by a banned member.
func (m Members) withoutBanned(banned map[identity.MemberID]struct{}, owner identity.MemberID) Members {
	if len(banned) == 0 {
		return m
	}
	dropped := make(map[identity.MemberID]bool, len(banned))
	for id := range banned {
		dropped[id] = true
	}
	for changed := true; changed; {
		changed = false
		for _, member := range m {
			id := member.ID()
			if !dropped[id] && dropped[member.Member.InvitedBy] {
				dropped[id] = true
				changed = true
			}
		}
	}
	kept := make(Members, 0, len(m))
	for _, member := range m {
		if !dropped[member.ID()] {
			kept = append(kept, member)
		}
	}
	return kept
}

// evict removes members until at most limit remain. Each step removes
// a leaf (a member nobody present was invited by): the one deepest in
// the invite tree, ties broken by the greatest id. The choice depends
// only on the member set, so every replica evicts the same members.
func (m Members) evict(owner identity.MemberID, limit int) Members {
	if limit <= 0 || len(m) <= limit {
		return m
	}
	kept := slices.Clone(m)
	for len(kept) > limit {
		inviters := make(map[identity.MemberID]bool, len(kept))
		for _, member := range kept {
			inviters[member.Member.InvitedBy] = true
		}
		depths := kept.depths(owner)

		victim := -1
		for i, member := range kept {
			id := member.ID()
			if inviters[id] {
				continue
			}
			if victim < 0 {
				victim = i
				continue
			}
			best := kept[victim].ID()
			if depths[id] > depths[best] || (depths[id] == depths[best] && id.Compare(best) > 0) {
				victim = i
			}
		}
		if victim < 0 {
			// Only reachable through an invite cycle; fall back to
			// the greatest id.
			victim = len(kept) - 1
		}
		kept = slices.Delete(kept, victim, victim+1)
	}
	return kept
}

// depths returns each member's distance from the owner along InvitedBy
// links. Members with a broken chain count as deepest.
func (m Members) depths(owner identity.MemberID) map[identity.MemberID]int {
	index := m.index()
	depths := make(map[identity.MemberID]int, len(m))
	var depthOf func(id identity.MemberID, guard int) int
	depthOf = func(id identity.MemberID, guard int) int {
		if depth, ok := depths[id]; ok {
			return depth
		}
		member, ok := index[id]
		if !ok || guard > len(m) {
			return len(m) + 1
		}
		depth := 1
		if member.Member.InvitedBy != owner {
			depth = depthOf(member.Member.InvitedBy, guard+1) + 1
		}
		depths[id] = depth
		return depth
	}
	for _, member := range m {
		depthOf(member.ID(), 0)
	}
	return depths
}
