// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/river/lib/identity"
)

// Parameters are the immutable inputs that identify a room.
type Parameters struct {
	Owner ed25519.PublicKey `cbor:"1,keyasint"`
}

// OwnerID returns the owner's MemberID.
func (p Parameters) OwnerID() identity.MemberID {
	return identity.MemberIDOf(p.Owner)
}

// Key returns the room's network address.
func (p Parameters) Key() RoomKey {
	return KeyFor(p.Owner)
}

// RoomLogicID is mixed into every RoomKey. Changing it moves every room
// to a new address.
const RoomLogicID = "river-room-v1"

var roomDomainKey = identity.NewDomainKey("river.room.key")

// RoomKey is the network address of a room: a BLAKE3 keyed hash of the
// room logic identifier and the owner's verifying key.
type RoomKey [32]byte

// KeyFor derives the RoomKey of the room owned by owner.
func KeyFor(owner ed25519.PublicKey) RoomKey {
	hasher, err := blake3.NewKeyed(roomDomainKey[:])
	if err != nil {
		panic("roomstate: blake3 keyed hasher: " + err.Error())
	}
	hasher.Write([]byte(RoomLogicID))
	hasher.Write(owner)
	var key RoomKey
	copy(key[:], hasher.Sum(nil))
	return key
}

// String returns the base58 form of the key.
func (k RoomKey) String() string {
	return base58.Encode(k[:])
}

// ParseRoomKey parses the base58 form produced by String.
func ParseRoomKey(text string) (RoomKey, error) {
	raw, err := base58.Decode(text)
	if err != nil {
		return RoomKey{}, fmt.Errorf("%w: room key: %v", identity.ErrMalformed, err)
	}
	var key RoomKey
	if len(raw) != len(key) {
		return RoomKey{}, fmt.Errorf("%w: room key is %d bytes", identity.ErrMalformed, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}
