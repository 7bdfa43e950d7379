// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package invite creates, encodes, and tracks River room invitations.
//
// An invitation hands a freshly generated signing key to the invitee
// together with a membership record for that key, already signed by
// the inviter. Accepting it means fetching the room from the network,
// adding the membership record, and publishing the result; [Tracker]
// follows each invitation through that process.
package invite

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/bureau-foundation/river/lib/codec"
	"github.com/bureau-foundation/river/lib/identity"
	"github.com/bureau-foundation/river/lib/roomstate"
)

const tokenPrefix = "river:v1:invite:"

// Invitation grants membership in the room owned by Room.
type Invitation struct {
	Room              ed25519.PublicKey          `cbor:"1,keyasint"`
	InviteeSigningKey []byte                     `cbor:"2,keyasint"`
	Invitee           roomstate.AuthorizedMember `cbor:"3,keyasint"`
}

// Create generates an invitee key and signs its membership with
// inviterKey.
func Create(state *roomstate.RoomState, params roomstate.Parameters, inviterKey ed25519.PrivateKey) (*Invitation, error) {
	inviteeKey, err := identity.GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	member, err := state.AuthorMember(params, inviterKey, identity.VerifyingKeyOf(inviteeKey))
	if err != nil {
		return nil, err
	}
	return &Invitation{
		Room:              params.Owner,
		InviteeSigningKey: inviteeKey.Seed(),
		Invitee:           member,
	}, nil
}

// Parameters returns the parameters of the invited room.
func (i *Invitation) Parameters() roomstate.Parameters {
	return roomstate.Parameters{Owner: i.Room}
}

// Key returns the invited room's key.
func (i *Invitation) Key() roomstate.RoomKey {
	return roomstate.KeyFor(i.Room)
}

// SigningKey returns the invitee's signing key.
func (i *Invitation) SigningKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(i.InviteeSigningKey)
}

// Encode renders the invitation as a river:v1:invite token.
func (i *Invitation) Encode() (string, error) {
	data, err := codec.Marshal(i)
	if err != nil {
		return "", fmt.Errorf("invite: encoding invitation: %w", err)
	}
	return tokenPrefix + base58.Encode(data), nil
}

// Decode parses a token produced by Encode and checks that it is
// internally consistent: the membership record must be for the key
// the token carries and for the room it names.
func Decode(token string) (*Invitation, error) {
	payload, ok := strings.CutPrefix(strings.TrimSpace(token), tokenPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: invitation lacks %q prefix", identity.ErrMalformed, tokenPrefix)
	}
	data, err := base58.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invitation base58: %v", identity.ErrMalformed, err)
	}
	var invitation Invitation
	if err := codec.Unmarshal(data, &invitation); err != nil {
		return nil, fmt.Errorf("%w: invitation payload: %v", identity.ErrMalformed, err)
	}
	if len(invitation.Room) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: room key is %d bytes", identity.ErrMalformed, len(invitation.Room))
	}
	if len(invitation.InviteeSigningKey) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: invitee key is %d bytes", identity.ErrMalformed, len(invitation.InviteeSigningKey))
	}
	if !invitation.Invitee.Member.VerifyingKey.Equal(identity.VerifyingKeyOf(invitation.SigningKey())) {
		return nil, fmt.Errorf("%w: membership record is for a different key", identity.ErrMalformed)
	}
	if invitation.Invitee.Member.OwnerMemberID != identity.MemberIDOf(invitation.Room) {
		return nil, fmt.Errorf("%w: membership record is for a different room", identity.ErrMalformed)
	}
	return &invitation, nil
}
