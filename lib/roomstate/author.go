// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"crypto/ed25519"
	"fmt"
	"strings"
	"time"

	"github.com/bureau-foundation/river/lib/identity"
)

// NewRoom creates a room owned by ownerKey with a default configuration
// and the owner's nickname.
func NewRoom(ownerKey ed25519.PrivateKey, name, nickname string) (*RoomState, Parameters, error) {
	params := Parameters{Owner: identity.VerifyingKeyOf(ownerKey)}
	owner := params.OwnerID()

	config := DefaultConfiguration(owner, name)
	signature, err := identity.Sign(ownerKey, config)
	if err != nil {
		return nil, Parameters{}, err
	}
	state := &RoomState{Configuration: AuthorizedConfiguration{Config: config, Signature: signature}}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, Parameters{}, ErrEmptyNickname
	}
	info, err := NewAuthorizedMemberInfo(MemberInfo{MemberID: owner, PreferredNickname: nickname}, ownerKey)
	if err != nil {
		return nil, Parameters{}, err
	}
	state.MemberInfo = MemberInfos{info}

	if err := state.Verify(params); err != nil {
		return nil, Parameters{}, fmt.Errorf("roomstate: new room does not verify: %w", err)
	}
	return state, params, nil
}

func (s *RoomState) requireParticipant(params Parameters, key ed25519.PrivateKey) (identity.MemberID, error) {
	id := identity.MemberIDOf(identity.VerifyingKeyOf(key))
	if !s.IsParticipant(params, id) {
		return id, fmt.Errorf("%w: %s", ErrAuthorNotMember, id)
	}
	return id, nil
}

// AuthorMessage signs a new message from signer.
func (s *RoomState) AuthorMessage(params Parameters, signer ed25519.PrivateKey, content string, now time.Time) (*StateDelta, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	author, err := s.requireParticipant(params, signer)
	if err != nil {
		return nil, err
	}
	if limit := s.Configuration.Config.MaxMessageSize; uint32(len(content)) > limit {
		return nil, fmt.Errorf("%w: message is %d bytes, limit %d", ErrCapacityExceeded, len(content), limit)
	}
	message, err := NewAuthorizedMessage(Message{
		OwnerMemberID: params.OwnerID(),
		Author:        author,
		Time:          now.UnixNano(),
		Content:       content,
	}, signer)
	if err != nil {
		return nil, err
	}
	return &StateDelta{Messages: []AuthorizedMessage{message}}, nil
}

// AuthorNickname publishes a new nickname for signer, one version above
// the current record.
func (s *RoomState) AuthorNickname(params Parameters, signer ed25519.PrivateKey, nickname string) (*StateDelta, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrEmptyNickname
	}
	id, err := s.requireParticipant(params, signer)
	if err != nil {
		return nil, err
	}
	if limit := s.Configuration.Config.MaxNicknameSize; uint32(len(nickname)) > limit {
		return nil, fmt.Errorf("%w: nickname is %d bytes, limit %d", ErrCapacityExceeded, len(nickname), limit)
	}
	version := uint64(0)
	if current, ok := s.MemberInfo.Get(id); ok {
		version = current.Info.Version + 1
	}
	info, err := NewAuthorizedMemberInfo(MemberInfo{MemberID: id, Version: version, PreferredNickname: nickname}, signer)
	if err != nil {
		return nil, err
	}
	return &StateDelta{MemberInfo: []AuthorizedMemberInfo{info}}, nil
}

// AuthorMember signs a membership record for invitee with the inviter's
// key. The record is returned rather than applied: it travels inside an
// invitation and is added when the invitee joins.
func (s *RoomState) AuthorMember(params Parameters, inviter ed25519.PrivateKey, invitee ed25519.PublicKey) (AuthorizedMember, error) {
	inviterID, err := s.requireParticipant(params, inviter)
	if err != nil {
		return AuthorizedMember{}, err
	}
	inviteeID := identity.MemberIDOf(invitee)
	if s.IsParticipant(params, inviteeID) {
		return AuthorizedMember{}, fmt.Errorf("%w: %s", ErrAlreadyMember, inviteeID)
	}
	if _, banned := s.Bans.Banned()[inviteeID]; banned {
		return AuthorizedMember{}, &MemberError{Member: inviteeID, Err: ErrMemberBanned}
	}
	return NewAuthorizedMember(Member{
		OwnerMemberID: params.OwnerID(),
		InvitedBy:     inviterID,
		VerifyingKey:  invitee,
	}, inviter)
}

// JoinDelta adds member, signed by its inviter, together with its first
// member info signed by inviteeKey.
func (s *RoomState) JoinDelta(params Parameters, member AuthorizedMember, inviteeKey ed25519.PrivateKey, nickname string) (*StateDelta, error) {
	if !member.Member.VerifyingKey.Equal(identity.VerifyingKeyOf(inviteeKey)) {
		return nil, fmt.Errorf("%w: invitation is for a different key", ErrSigningKeyMismatch)
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrEmptyNickname
	}

	delta := &StateDelta{}
	if _, present := s.Members.Get(member.ID()); !present {
		delta.Members = &MembersDelta{Added: []AuthorizedMember{member}}
	}
	version := uint64(0)
	if current, ok := s.MemberInfo.Get(member.ID()); ok {
		version = current.Info.Version + 1
	}
	info, err := NewAuthorizedMemberInfo(MemberInfo{
		MemberID:          member.ID(),
		Version:           version,
		PreferredNickname: nickname,
	}, inviteeKey)
	if err != nil {
		return nil, err
	}
	delta.MemberInfo = []AuthorizedMemberInfo{info}
	return delta, nil
}

// AuthorBan bans target on behalf of banner. Non-owners may only ban
// members below them in the invite tree.
func (s *RoomState) AuthorBan(params Parameters, banner ed25519.PrivateKey, target identity.MemberID, now time.Time) (*StateDelta, error) {
	bannerID, err := s.requireParticipant(params, banner)
	if err != nil {
		return nil, err
	}
	if bannerID == target {
		return nil, fmt.Errorf("%w: members cannot ban themselves", ErrBanNotAuthorized)
	}
	ban, err := NewAuthorizedUserBan(UserBan{
		OwnerMemberID: params.OwnerID(),
		BannedAt:      now.UnixNano(),
		BannedUser:    target,
	}, banner)
	if err != nil {
		return nil, err
	}
	if err := authorizeBan(s, params.OwnerID(), ban); err != nil {
		return nil, err
	}
	return &StateDelta{Bans: []AuthorizedUserBan{ban}}, nil
}

// AuthorConfiguration applies mutate to a copy of the configuration,
// bumps the version, and signs it with the owner key.
func (s *RoomState) AuthorConfiguration(params Parameters, ownerKey ed25519.PrivateKey, mutate func(*Configuration)) (*StateDelta, error) {
	if !identity.VerifyingKeyOf(ownerKey).Equal(params.Owner) {
		return nil, fmt.Errorf("%w: configuration must be signed by the owner", ErrSigningKeyMismatch)
	}
	config := s.Configuration.Config
	mutate(&config)
	config.OwnerMemberID = params.OwnerID()
	config.Version = s.Configuration.Config.Version + 1

	signature, err := identity.Sign(ownerKey, config)
	if err != nil {
		return nil, err
	}
	authorized := &AuthorizedConfiguration{Config: config, Signature: signature}
	if err := authorized.Verify(s, params); err != nil {
		return nil, err
	}
	return &StateDelta{Configuration: authorized}, nil
}
