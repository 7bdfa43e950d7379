// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"bytes"
	"cmp"
	"crypto/ed25519"
	"fmt"
	"slices"
	"time"

	"github.com/mr-tron/base58"

	"github.com/bureau-foundation/river/lib/identity"
)

// Message is one chat message. Time is Unix nanoseconds as reported by
// the author.
type Message struct {
	OwnerMemberID identity.MemberID `cbor:"1,keyasint"`
	Author        identity.MemberID `cbor:"2,keyasint"`
	Time          int64             `cbor:"3,keyasint"`
	Content       string            `cbor:"4,keyasint"`
}

// Timestamp returns Time as a time.Time.
func (m Message) Timestamp() time.Time {
	return time.Unix(0, m.Time)
}

// AuthorizedMessage is a Message signed by its author.
type AuthorizedMessage struct {
	Message   Message `cbor:"1,keyasint"`
	Signature []byte  `cbor:"2,keyasint"`
}

// NewAuthorizedMessage signs message with the author's key.
func NewAuthorizedMessage(message Message, author ed25519.PrivateKey) (AuthorizedMessage, error) {
	if message.Author != identity.MemberIDOf(identity.VerifyingKeyOf(author)) {
		return AuthorizedMessage{}, fmt.Errorf("%w: message must be signed by its author", ErrSigningKeyMismatch)
	}
	signature, err := identity.Sign(author, message)
	if err != nil {
		return AuthorizedMessage{}, err
	}
	return AuthorizedMessage{Message: message, Signature: signature}, nil
}

var messageDomainKey = identity.NewDomainKey("river.message.id")

// MessageID is a hash of the message signature.
type MessageID identity.Digest

// ID returns the message's id.
func (m AuthorizedMessage) ID() MessageID {
	return MessageID(identity.ShortHash(messageDomainKey, m.Signature))
}

// Compare orders MessageIDs by their bytes.
func (id MessageID) Compare(other MessageID) int {
	return bytes.Compare(id[:], other[:])
}

func (id MessageID) String() string {
	return base58.Encode(id[:])
}

// compareMessages is the log order: time, then message id.
func compareMessages(a, b AuthorizedMessage) int {
	if order := cmp.Compare(a.Message.Time, b.Message.Time); order != 0 {
		return order
	}
	return a.ID().Compare(b.ID())
}

// Messages is the recent-message window in log order.
type Messages []AuthorizedMessage

// Verify checks every message against the configured limits and its author's key.
func (m Messages) Verify(parent *RoomState, params Parameters) error {
	config := parent.Configuration.Config
	if uint32(len(m)) > config.MaxRecentMessages {
		return fmt.Errorf("%w: %d messages, limit %d", ErrCapacityExceeded, len(m), config.MaxRecentMessages)
	}
	owner := params.OwnerID()
	seen := make(map[MessageID]bool, len(m))
	for _, message := range m {
		id := message.ID()
		if seen[id] {
			return &MessageError{Message: id, Err: ErrDuplicateRecord}
		}
		seen[id] = true

		if message.Message.OwnerMemberID != owner {
			return &MessageError{Message: id, Err: ErrWrongRoom}
		}
		if uint32(len(message.Message.Content)) > config.MaxMessageSize {
			return &MessageError{Message: id, Err: fmt.Errorf("%w: content is %d bytes, limit %d",
				ErrCapacityExceeded, len(message.Message.Content), config.MaxMessageSize)}
		}
		key, ok := parent.MemberKey(params, message.Message.Author)
		if !ok {
			return &MessageError{Message: id, Err: fmt.Errorf("%w: %s", ErrAuthorNotMember, message.Message.Author)}
		}
		if err := identity.Verify(key, message.Message, message.Signature); err != nil {
			return &MessageError{Message: id, Err: err}
		}
	}
	return nil
}

// Summarize returns the message ids in log order.
func (m Messages) Summarize(parent *RoomState, params Parameters) []MessageID {
	ids := make([]MessageID, len(m))
	for i, message := range m {
		ids[i] = message.ID()
	}
	return ids
}

// Delta returns the messages whose ids old lacks.
func (m Messages) Delta(parent *RoomState, params Parameters, old []MessageID) ([]AuthorizedMessage, bool) {
	known := make(map[MessageID]bool, len(old))
	for _, id := range old {
		known[id] = true
	}
	var delta []AuthorizedMessage
	for _, message := range m {
		if !known[message.ID()] {
			delta = append(delta, message)
		}
	}
	return delta, len(delta) > 0
}

// ApplyDelta adds new messages, drops oversized ones and those whose
// author has left, restores log order, and trims the oldest messages
// beyond MaxRecentMessages.
func (m *Messages) ApplyDelta(parent *RoomState, params Parameters, delta []AuthorizedMessage) error {
	config := parent.Configuration.Config

	next := make(Messages, 0, len(*m)+len(delta))
	present := make(map[MessageID]bool, len(*m)+len(delta))
	for _, message := range slices.Concat(*m, delta) {
		id := message.ID()
		if present[id] {
			continue
		}
		present[id] = true
		if uint32(len(message.Message.Content)) > config.MaxMessageSize {
			continue
		}
		if _, ok := parent.MemberKey(params, message.Message.Author); !ok {
			continue
		}
		next = append(next, message)
	}
	slices.SortFunc(next, compareMessages)

	if excess := len(next) - int(config.MaxRecentMessages); excess > 0 {
		next = slices.Clone(next[excess:])
	}
	*m = next
	return nil
}
