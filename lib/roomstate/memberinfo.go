// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"slices"

	"github.com/bureau-foundation/river/lib/identity"
)

// MemberInfo is a member's self-published profile.
type MemberInfo struct {
	MemberID          identity.MemberID `cbor:"1,keyasint"`
	Version           uint64            `cbor:"2,keyasint"`
	PreferredNickname string            `cbor:"3,keyasint"`
}

// AuthorizedMemberInfo is a MemberInfo signed by the member it
// describes.
type AuthorizedMemberInfo struct {
	Info      MemberInfo `cbor:"1,keyasint"`
	Signature []byte     `cbor:"2,keyasint"`
}

// NewAuthorizedMemberInfo signs info with the member's own key.
func NewAuthorizedMemberInfo(info MemberInfo, key ed25519.PrivateKey) (AuthorizedMemberInfo, error) {
	if info.MemberID != identity.MemberIDOf(identity.VerifyingKeyOf(key)) {
		return AuthorizedMemberInfo{}, fmt.Errorf("%w: member info must be signed by its member", ErrSigningKeyMismatch)
	}
	signature, err := identity.Sign(key, info)
	if err != nil {
		return AuthorizedMemberInfo{}, err
	}
	return AuthorizedMemberInfo{Info: info, Signature: signature}, nil
}

// MemberInfos holds at most one record per member, sorted by member id.
type MemberInfos []AuthorizedMemberInfo

// Get returns the record for id.
func (m MemberInfos) Get(id identity.MemberID) (AuthorizedMemberInfo, bool) {
	for _, info := range m {
		if info.Info.MemberID == id {
			return info, true
		}
	}
	return AuthorizedMemberInfo{}, false
}

// Verify checks that each record is signed by a current participant.
func (m MemberInfos) Verify(parent *RoomState, params Parameters) error {
	limit := parent.Configuration.Config.MaxNicknameSize
	seen := make(map[identity.MemberID]bool, len(m))
	for _, info := range m {
		id := info.Info.MemberID
		if seen[id] {
			return &MemberError{Member: id, Err: fmt.Errorf("member info: %w", ErrDuplicateRecord)}
		}
		seen[id] = true

		key, ok := parent.MemberKey(params, id)
		if !ok {
			return &MemberError{Member: id, Err: fmt.Errorf("member info: %w", ErrAuthorNotMember)}
		}
		if info.Info.PreferredNickname == "" {
			return &MemberError{Member: id, Err: ErrEmptyNickname}
		}
		if uint32(len(info.Info.PreferredNickname)) > limit {
			return &MemberError{Member: id, Err: fmt.Errorf("%w: nickname is %d bytes, limit %d",
				ErrCapacityExceeded, len(info.Info.PreferredNickname), limit)}
		}
		if err := identity.Verify(key, info.Info, info.Signature); err != nil {
			return &MemberError{Member: id, Err: fmt.Errorf("member info version %d: %w", info.Info.Version, err)}
		}
	}
	return nil
}

// Summarize maps each member to the version held.
func (m MemberInfos) Summarize(parent *RoomState, params Parameters) map[identity.MemberID]uint64 {
	versions := make(map[identity.MemberID]uint64, len(m))
	for _, info := range m {
		versions[info.Info.MemberID] = info.Info.Version
	}
	return versions
}

// Delta returns records that old lacks or holds at a lower version.
func (m MemberInfos) Delta(parent *RoomState, params Parameters, old map[identity.MemberID]uint64) ([]AuthorizedMemberInfo, bool) {
	var delta []AuthorizedMemberInfo
	for _, info := range m {
		version, known := old[info.Info.MemberID]
		if !known || info.Info.Version > version {
			delta = append(delta, info)
		}
	}
	return delta, len(delta) > 0
}

// ApplyDelta keeps, per member, the record with the highest version,
// and drops records of anyone no longer in the room.
func (m *MemberInfos) ApplyDelta(parent *RoomState, params Parameters, delta []AuthorizedMemberInfo) error {
	byMember := make(map[identity.MemberID]AuthorizedMemberInfo, len(*m)+len(delta))
	for _, info := range *m {
		byMember[info.Info.MemberID] = info
	}
	for _, info := range delta {
		current, exists := byMember[info.Info.MemberID]
		if exists && !supersedes(info, current) {
			continue
		}
		byMember[info.Info.MemberID] = info
	}

	next := make(MemberInfos, 0, len(byMember))
	for id, info := range byMember {
		if _, ok := parent.MemberKey(params, id); ok {
			next = append(next, info)
		}
	}
	slices.SortFunc(next, func(a, b AuthorizedMemberInfo) int {
		return a.Info.MemberID.Compare(b.Info.MemberID)
	})
	*m = next
	return nil
}

// supersedes orders two records of the same member: higher version
// wins, and equal versions fall back to the greater signature so the
// outcome does not depend on arrival order.
func supersedes(candidate, current AuthorizedMemberInfo) bool {
	if candidate.Info.Version != current.Info.Version {
		return candidate.Info.Version > current.Info.Version
	}
	return bytes.Compare(candidate.Signature, current.Signature) > 0
}
