// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/river/lib/identity"
)

var (
	// ErrSignatureInvalid is identity.ErrSignatureInvalid, re-exported
	// so callers classifying room errors need only this package.
	ErrSignatureInvalid = identity.ErrSignatureInvalid

	// ErrInviteChainBroken means a member's InvitedBy links do not lead
	// back to the owner.
	ErrInviteChainBroken = errors.New("roomstate: invite chain broken")

	// ErrInviterNotFound is the ErrInviteChainBroken case where an
	// InvitedBy link names nobody in the room.
	ErrInviterNotFound = fmt.Errorf("%w: inviter not found", ErrInviteChainBroken)

	ErrAuthorNotMember  = errors.New("roomstate: author is not a member")
	ErrOwnerInMembers   = errors.New("roomstate: owner listed among members")
	ErrCapacityExceeded = errors.New("roomstate: capacity exceeded")

	// ErrStateRejected means a merged room failed verification and
	// the previous state was kept.
	ErrStateRejected = errors.New("roomstate: merged state rejected")

	ErrMemberBanned         = errors.New("roomstate: banned user listed among members")
	ErrBanNotAuthorized     = errors.New("roomstate: banner may not ban this member")
	ErrInvalidConfiguration = errors.New("roomstate: invalid configuration")
	ErrDuplicateRecord      = errors.New("roomstate: duplicate record")
	ErrWrongRoom            = errors.New("roomstate: record belongs to another room")

	// Authoring errors. These are returned before anything is signed.
	ErrEmptyMessage       = errors.New("roomstate: message is empty")
	ErrEmptyNickname      = errors.New("roomstate: nickname is empty")
	ErrSigningKeyMismatch = errors.New("roomstate: signing key does not match the required identity")
	ErrAlreadyMember      = errors.New("roomstate: already a member")
)

// MemberError names the member record that failed a check.
type MemberError struct {
	Member identity.MemberID
	Err    error
}

func (e *MemberError) Error() string {
	return fmt.Sprintf("roomstate: member %s: %v", e.Member, e.Err)
}

func (e *MemberError) Unwrap() error { return e.Err }

// MessageError names the message that failed a check.
type MessageError struct {
	Message MessageID
	Err     error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("roomstate: message %s: %v", e.Message, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

// FieldError is one sub-state's merge failure.
type FieldError struct {
	Field Field
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("roomstate: %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }
