// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMessageWindowConvergesInAnyOrder(t *testing.T) {
	r := newRoom(t)
	r.configure(func(c *Configuration) { c.MaxRecentMessages = 3 })

	var deltas []*StateDelta
	for i := range 5 {
		deltas = append(deltas, r.post(r.ownerKey, string(rune('a'+i)), baseTime.Add(time.Duration(i)*time.Second)))
	}

	forward := r.state.Clone()
	backward := r.state.Clone()
	for i := range deltas {
		if _, err := forward.ApplyDelta(r.params, deltas[i]); err != nil {
			t.Fatalf("forward ApplyDelta %d: %v", i, err)
		}
		if _, err := backward.ApplyDelta(r.params, deltas[len(deltas)-1-i]); err != nil {
			t.Fatalf("backward ApplyDelta %d: %v", i, err)
		}
	}

	requireSameState(t, forward, backward)
	var contents []string
	for _, message := range forward.Messages {
		contents = append(contents, message.Message.Content)
	}
	if got := strings.Join(contents, ""); got != "cde" {
		t.Errorf("window = %q, want %q", got, "cde")
	}
}

func TestEqualTimestampsOrderByMessageID(t *testing.T) {
	r := newRoom(t)
	alice := r.invite(r.ownerKey, "alice")
	first := r.post(r.ownerKey, "from owner", baseTime)
	second := r.post(alice, "from alice", baseTime)

	r.apply(second)
	r.apply(first)

	if len(r.state.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(r.state.Messages))
	}
	if r.state.Messages[0].ID().Compare(r.state.Messages[1].ID()) >= 0 {
		t.Error("messages with equal timestamps are not ordered by id")
	}
}

func TestOversizedMessageDroppedOnApply(t *testing.T) {
	r := newRoom(t)
	r.configure(func(c *Configuration) { c.MaxMessageSize = 10 })

	oversized, err := NewAuthorizedMessage(Message{
		OwnerMemberID: r.params.OwnerID(),
		Author:        r.params.OwnerID(),
		Time:          baseTime.UnixNano(),
		Content:       strings.Repeat("x", 11),
	}, r.ownerKey)
	if err != nil {
		t.Fatalf("NewAuthorizedMessage: %v", err)
	}
	r.apply(&StateDelta{Messages: []AuthorizedMessage{oversized}})
	if len(r.state.Messages) != 0 {
		t.Errorf("oversized message was kept")
	}

	if _, err := r.state.AuthorMessage(r.params, r.ownerKey, strings.Repeat("x", 11), baseTime); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("AuthorMessage oversized = %v, want ErrCapacityExceeded", err)
	}
}

func TestMessageFromNonMemberDropped(t *testing.T) {
	r := newRoom(t)
	stranger := mustKey(t)
	message, err := NewAuthorizedMessage(Message{
		OwnerMemberID: r.params.OwnerID(),
		Author:        idOf(stranger),
		Time:          baseTime.UnixNano(),
		Content:       "hello",
	}, stranger)
	if err != nil {
		t.Fatalf("NewAuthorizedMessage: %v", err)
	}
	r.apply(&StateDelta{Messages: []AuthorizedMessage{message}})
	if len(r.state.Messages) != 0 {
		t.Error("message from a non-member was kept")
	}

	if _, err := r.state.AuthorMessage(r.params, stranger, "hello", baseTime); !errors.Is(err, ErrAuthorNotMember) {
		t.Errorf("AuthorMessage by stranger = %v, want ErrAuthorNotMember", err)
	}
}

func TestMessagesOfDepartedMemberAreDropped(t *testing.T) {
	r := newRoom(t)
	alice := r.invite(r.ownerKey, "alice")
	r.apply(r.post(alice, "bye", baseTime))
	r.apply(r.post(r.ownerKey, "stay", baseTime.Add(time.Second)))

	ban, err := r.state.AuthorBan(r.params, r.ownerKey, idOf(alice), baseTime.Add(2*time.Second))
	if err != nil {
		t.Fatalf("AuthorBan: %v", err)
	}
	r.apply(ban)

	if len(r.state.Messages) != 1 || r.state.Messages[0].Message.Content != "stay" {
		t.Errorf("messages after ban = %+v, want only the owner's", r.state.Messages)
	}
}

func TestAuthorMessageRejectsEmpty(t *testing.T) {
	r := newRoom(t)
	if _, err := r.state.AuthorMessage(r.params, r.ownerKey, "   ", baseTime); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("AuthorMessage empty = %v, want ErrEmptyMessage", err)
	}
}
