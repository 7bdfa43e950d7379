// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/bureau-foundation/river/lib/identity"
)

func TestInviteChainVerifies(t *testing.T) {
	r := newRoom(t)
	inviter := r.ownerKey
	for range 5 {
		inviter = r.invite(inviter, "member")
	}
	if len(r.state.Members) != 5 {
		t.Fatalf("members = %d, want 5", len(r.state.Members))
	}
	if err := r.state.Verify(r.params); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	chain := r.state.Members.InviteChain(idOf(inviter), r.params.OwnerID())
	if len(chain) != 4 {
		t.Errorf("invite chain length = %d, want 4", len(chain))
	}
}

func TestTamperedChainLinkFails(t *testing.T) {
	r := newRoom(t)
	alice := r.invite(r.ownerKey, "alice")
	bob := r.invite(alice, "bob")
	r.invite(bob, "carol")

	for i, member := range r.state.Members {
		if member.ID() == idOf(bob) {
			signature := append([]byte(nil), member.Signature...)
			signature[0] ^= 0xff
			r.state.Members[i].Signature = signature
		}
	}

	err := r.state.Verify(r.params)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("Verify = %v, want ErrSignatureInvalid", err)
	}
	var memberErr *MemberError
	if !errors.As(err, &memberErr) {
		t.Fatalf("Verify error %v does not carry a MemberError", err)
	}
}

func TestOwnerInMembersFails(t *testing.T) {
	r := newRoom(t)
	self, err := NewAuthorizedMember(Member{
		OwnerMemberID: r.params.OwnerID(),
		InvitedBy:     r.params.OwnerID(),
		VerifyingKey:  r.params.Owner,
	}, r.ownerKey)
	if err != nil {
		t.Fatalf("NewAuthorizedMember: %v", err)
	}
	r.state.Members = Members{self}

	if err := r.state.Verify(r.params); !errors.Is(err, ErrOwnerInMembers) {
		t.Fatalf("Verify = %v, want ErrOwnerInMembers", err)
	}
}

func TestMissingInviterBreaksChain(t *testing.T) {
	r := newRoom(t)
	alice := r.invite(r.ownerKey, "alice")
	r.invite(alice, "bob")

	var kept Members
	for _, member := range r.state.Members {
		if member.ID() != idOf(alice) {
			kept = append(kept, member)
		}
	}
	r.state.Members = kept

	err := r.state.Members.Verify(r.state, r.params)
	if !errors.Is(err, ErrInviterNotFound) {
		t.Fatalf("Verify = %v, want ErrInviterNotFound", err)
	}
	if !errors.Is(err, ErrInviteChainBroken) {
		t.Fatalf("Verify = %v, want it to match ErrInviteChainBroken", err)
	}
}

func TestRemovalDeltaOrphaningMemberIsRejected(t *testing.T) {
	r := newRoom(t)
	alice := r.invite(r.ownerKey, "alice")
	bob := r.invite(alice, "bob")

	report, err := r.state.ApplyDelta(r.params, &StateDelta{
		Members: &MembersDelta{Removed: []identity.MemberID{idOf(alice)}},
	})
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if report.Clean() || report.Rejected[0].Field != FieldMembers {
		t.Fatalf("expected the members delta to be rejected, report: %v", report.Err())
	}
	if _, ok := r.state.Members.Get(idOf(bob)); !ok {
		t.Error("bob disappeared although the members delta was rejected")
	}
}

func TestMembersDeltaAddsAndRemoves(t *testing.T) {
	r := newRoom(t)
	r.invite(r.ownerKey, "alice")
	before := r.state.Clone()
	beforeSummary := before.Members.Summarize(before, r.params)

	bob := r.invite(r.ownerKey, "bob")
	delta, changed := r.state.Members.Delta(r.state, r.params, beforeSummary)
	if !changed {
		t.Fatal("Delta reported no change after an invite")
	}
	if len(delta.Added) != 1 || delta.Added[0].ID() != idOf(bob) || len(delta.Removed) != 0 {
		t.Fatalf("delta = %+v, want bob added", delta)
	}

	reverse, changed := before.Members.Delta(before, r.params, r.state.Members.Summarize(r.state, r.params))
	if !changed || len(reverse.Removed) != 1 || reverse.Removed[0] != idOf(bob) {
		t.Fatalf("reverse delta = %+v, want bob removed", reverse)
	}

	if _, changed := r.state.Members.Delta(r.state, r.params, r.state.Members.Summarize(r.state, r.params)); changed {
		t.Error("Delta against own summary reported a change")
	}
}

func TestEvictionIsDeterministic(t *testing.T) {
	r := newRoom(t)
	alice := r.invite(r.ownerKey, "alice")
	bob := r.invite(r.ownerKey, "bob")
	carol := r.invite(alice, "carol")
	dave := r.invite(carol, "dave")
	erin := r.invite(bob, "erin")

	shuffled := r.state.Clone()
	rand.Shuffle(len(shuffled.Members), func(i, j int) {
		shuffled.Members[i], shuffled.Members[j] = shuffled.Members[j], shuffled.Members[i]
	})

	configDelta, err := r.state.AuthorConfiguration(r.params, r.ownerKey, func(c *Configuration) { c.MaxMembers = 3 })
	if err != nil {
		t.Fatalf("AuthorConfiguration: %v", err)
	}
	r.apply(configDelta)
	if _, err := shuffled.ApplyDelta(r.params, configDelta); err != nil {
		t.Fatalf("ApplyDelta on shuffled replica: %v", err)
	}

	if len(r.state.Members) != 3 {
		t.Fatalf("members after eviction = %d, want 3", len(r.state.Members))
	}
	requireSameState(t, r.state, shuffled)

	// Dave is the only depth-3 leaf and goes first. Carol and Erin are
	// then both depth-2 leaves; the greater id goes.
	if _, ok := r.state.Members.Get(idOf(dave)); ok {
		t.Error("dave survived eviction")
	}
	evicted, kept := idOf(carol), idOf(erin)
	if kept.Compare(evicted) > 0 {
		evicted, kept = kept, evicted
	}
	if _, ok := r.state.Members.Get(evicted); ok {
		t.Errorf("%s survived eviction", evicted)
	}
	for _, id := range []identity.MemberID{idOf(alice), idOf(bob), kept} {
		if _, ok := r.state.Members.Get(id); !ok {
			t.Errorf("%s was evicted", id)
		}
	}
	if err := r.state.Verify(r.params); err != nil {
		t.Fatalf("Verify after eviction: %v", err)
	}
}

func TestAuthorMemberRequiresParticipant(t *testing.T) {
	r := newRoom(t)
	stranger := mustKey(t)
	_, err := r.state.AuthorMember(r.params, stranger, identity.VerifyingKeyOf(mustKey(t)))
	if !errors.Is(err, ErrAuthorNotMember) {
		t.Fatalf("AuthorMember by stranger = %v, want ErrAuthorNotMember", err)
	}

	alice := r.invite(r.ownerKey, "alice")
	_, err = r.state.AuthorMember(r.params, r.ownerKey, identity.VerifyingKeyOf(alice))
	if !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("AuthorMember for existing member = %v, want ErrAlreadyMember", err)
	}
}
