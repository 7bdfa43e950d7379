// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"errors"
	"testing"
	"time"
)

func TestBanRemovesInviteSubtree(t *testing.T) {
	r := newRoom(t)
	alice := r.invite(r.ownerKey, "alice")
	bob := r.invite(alice, "bob")
	carol := r.invite(r.ownerKey, "carol")

	delta, err := r.state.AuthorBan(r.params, r.ownerKey, idOf(alice), baseTime)
	if err != nil {
		t.Fatalf("AuthorBan: %v", err)
	}
	r.apply(delta)

	if _, ok := r.state.Members.Get(idOf(alice)); ok {
		t.Error("alice survived her ban")
	}
	if _, ok := r.state.Members.Get(idOf(bob)); ok {
		t.Error("bob, invited by alice, survived her ban")
	}
	if _, ok := r.state.Members.Get(idOf(carol)); !ok {
		t.Error("carol was removed by an unrelated ban")
	}
	if _, ok := r.state.MemberInfo.Get(idOf(bob)); ok {
		t.Error("bob's member info survived")
	}
	if err := r.state.Verify(r.params); err != nil {
		t.Fatalf("Verify after ban: %v", err)
	}
}

func TestBanRequiresAncestor(t *testing.T) {
	r := newRoom(t)
	alice := r.invite(r.ownerKey, "alice")
	bob := r.invite(alice, "bob")
	carol := r.invite(r.ownerKey, "carol")

	if _, err := r.state.AuthorBan(r.params, carol, idOf(bob), baseTime); !errors.Is(err, ErrBanNotAuthorized) {
		t.Fatalf("AuthorBan by non-ancestor = %v, want ErrBanNotAuthorized", err)
	}

	forged, err := NewAuthorizedUserBan(UserBan{
		OwnerMemberID: r.params.OwnerID(),
		BannedAt:      baseTime.UnixNano(),
		BannedUser:    idOf(bob),
	}, carol)
	if err != nil {
		t.Fatalf("NewAuthorizedUserBan: %v", err)
	}
	report, err := r.state.ApplyDelta(r.params, &StateDelta{Bans: []AuthorizedUserBan{forged}})
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if report.Clean() || !errors.Is(report.Err(), ErrBanNotAuthorized) {
		t.Fatalf("report = %v, want bans rejected with ErrBanNotAuthorized", report.Err())
	}
	if _, ok := r.state.Members.Get(idOf(bob)); !ok {
		t.Error("bob removed by an unauthorized ban")
	}

	allowed, err := r.state.AuthorBan(r.params, alice, idOf(bob), baseTime)
	if err != nil {
		t.Fatalf("AuthorBan by inviter: %v", err)
	}
	r.apply(allowed)
	if _, ok := r.state.Members.Get(idOf(bob)); ok {
		t.Error("bob survived a ban by his inviter")
	}
}

func TestBanListTrimsOldest(t *testing.T) {
	r := newRoom(t)
	r.configure(func(c *Configuration) { c.MaxUserBans = 2 })

	var victims []string
	for i := range 3 {
		victim := r.invite(r.ownerKey, "victim")
		delta, err := r.state.AuthorBan(r.params, r.ownerKey, idOf(victim), baseTime.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("AuthorBan %d: %v", i, err)
		}
		r.apply(delta)
		victims = append(victims, idOf(victim).String())
	}

	if len(r.state.Bans) != 2 {
		t.Fatalf("bans = %d, want 2", len(r.state.Bans))
	}
	if r.state.Bans[0].Ban.BannedUser.String() != victims[1] {
		t.Errorf("oldest remaining ban targets %s, want %s", r.state.Bans[0].Ban.BannedUser, victims[1])
	}
}

func TestBanningABannerDropsTheirBans(t *testing.T) {
	r := newRoom(t)
	alice := r.invite(r.ownerKey, "alice")
	bob := r.invite(alice, "bob")

	aliceBan, err := r.state.AuthorBan(r.params, alice, idOf(bob), baseTime)
	if err != nil {
		t.Fatalf("AuthorBan by alice: %v", err)
	}
	r.apply(aliceBan)

	ownerBan, err := r.state.AuthorBan(r.params, r.ownerKey, idOf(alice), baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("AuthorBan by owner: %v", err)
	}
	r.apply(ownerBan)

	if _, ok := r.state.Members.Get(idOf(alice)); ok {
		t.Error("alice survived the owner's ban")
	}
	if len(r.state.Bans) != 1 || r.state.Bans[0].BannedBy != r.params.OwnerID() {
		t.Fatalf("bans = %+v, want only the owner's ban", r.state.Bans)
	}
	if err := r.state.Verify(r.params); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// A replica that has not seen the owner's ban still offers
	// alice's; it no longer has a participant to vouch for it.
	report, err := r.state.ApplyDelta(r.params, aliceBan)
	if err != nil {
		t.Fatalf("ApplyDelta of alice's ban: %v", err)
	}
	if report.Clean() || !errors.Is(report.Err(), ErrAuthorNotMember) {
		t.Fatalf("report = %v, want bans rejected with ErrAuthorNotMember", report.Err())
	}
	if len(r.state.Bans) != 1 {
		t.Errorf("bans = %d after the stale ban, want 1", len(r.state.Bans))
	}
}

func TestEvictingABannerDropsTheirBans(t *testing.T) {
	r := newRoom(t)
	carol := r.invite(r.ownerKey, "carol")
	alice := r.invite(carol, "alice")
	bob := r.invite(alice, "bob")

	delta, err := r.state.AuthorBan(r.params, alice, idOf(bob), baseTime)
	if err != nil {
		t.Fatalf("AuthorBan by alice: %v", err)
	}
	r.apply(delta)

	// alice is now the only leaf, so she is evicted first.
	r.configure(func(c *Configuration) { c.MaxMembers = 1 })

	if len(r.state.Members) != 1 {
		t.Fatalf("members = %d, want 1", len(r.state.Members))
	}
	if _, ok := r.state.Members.Get(idOf(carol)); !ok {
		t.Error("carol was evicted instead of alice")
	}
	if len(r.state.Bans) != 0 {
		t.Errorf("bans = %d, want alice's ban dropped with her", len(r.state.Bans))
	}
	if err := r.state.Verify(r.params); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestSelfBanRejected(t *testing.T) {
	r := newRoom(t)
	if _, err := r.state.AuthorBan(r.params, r.ownerKey, r.params.OwnerID(), baseTime); !errors.Is(err, ErrBanNotAuthorized) {
		t.Errorf("owner self-ban = %v, want ErrBanNotAuthorized", err)
	}
}
