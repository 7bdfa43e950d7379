// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/river/lib/identity"
)

// component is the contract every sub-state fulfils. S is its summary
// type and D its delta type.
type component[S, D any] interface {
	Verify(parent *RoomState, params Parameters) error
	Summarize(parent *RoomState, params Parameters) S
	Delta(parent *RoomState, params Parameters, old S) (D, bool)
	ApplyDelta(parent *RoomState, params Parameters, delta D) error
}

var (
	_ component[uint64, *AuthorizedConfiguration]                      = (*AuthorizedConfiguration)(nil)
	_ component[BanSet, []AuthorizedUserBan]                           = (*Bans)(nil)
	_ component[MemberSet, MembersDelta]                               = (*Members)(nil)
	_ component[map[identity.MemberID]uint64, []AuthorizedMemberInfo] = (*MemberInfos)(nil)
	_ component[[]MessageID, []AuthorizedMessage]                      = (*Messages)(nil)
)

// Field names one sub-state of a room.
type Field int

const (
	FieldConfiguration Field = iota
	FieldMembers
	FieldBans
	FieldMemberInfo
	FieldMessages
)

func (f Field) String() string {
	switch f {
	case FieldConfiguration:
		return "configuration"
	case FieldMembers:
		return "members"
	case FieldBans:
		return "bans"
	case FieldMemberInfo:
		return "member info"
	case FieldMessages:
		return "messages"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// RoomState is the full replicated state of a room. Records inside are
// treated as immutable once signed; Clone copies the containers, not
// the signature bytes.
type RoomState struct {
	Configuration AuthorizedConfiguration `cbor:"1,keyasint"`
	Bans          Bans                    `cbor:"2,keyasint,omitempty"`
	Members       Members                 `cbor:"3,keyasint,omitempty"`
	MemberInfo    MemberInfos             `cbor:"4,keyasint,omitempty"`
	Messages      Messages                `cbor:"5,keyasint,omitempty"`
}

// StateSummary summarizes every sub-state.
type StateSummary struct {
	Configuration uint64
	Bans          BanSet
	Members       MemberSet
	MemberInfo    map[identity.MemberID]uint64
	Messages      []MessageID
}

// StateDelta carries per-sub-state deltas. A nil field means no change
// to that sub-state.
type StateDelta struct {
	Configuration *AuthorizedConfiguration `cbor:"1,keyasint,omitempty"`
	Bans          []AuthorizedUserBan      `cbor:"2,keyasint,omitempty"`
	Members       *MembersDelta            `cbor:"3,keyasint,omitempty"`
	MemberInfo    []AuthorizedMemberInfo   `cbor:"4,keyasint,omitempty"`
	Messages      []AuthorizedMessage      `cbor:"5,keyasint,omitempty"`
}

// IsEmpty reports whether the delta changes nothing.
func (d *StateDelta) IsEmpty() bool {
	return d == nil || (d.Configuration == nil && len(d.Bans) == 0 && d.Members == nil &&
		len(d.MemberInfo) == 0 && len(d.Messages) == 0)
}

// MemberKey returns the verifying key of the owner or a current member.
func (s *RoomState) MemberKey(params Parameters, id identity.MemberID) (ed25519.PublicKey, bool) {
	if id == params.OwnerID() {
		return params.Owner, true
	}
	member, ok := s.Members.Get(id)
	if !ok {
		return nil, false
	}
	return member.Member.VerifyingKey, true
}

// IsParticipant reports whether id is the owner or a current member.
func (s *RoomState) IsParticipant(params Parameters, id identity.MemberID) bool {
	_, ok := s.MemberKey(params, id)
	return ok
}

// Nickname returns the preferred nickname of id, or its short id when
// it has published none.
func (s *RoomState) Nickname(id identity.MemberID) string {
	if info, ok := s.MemberInfo.Get(id); ok {
		return info.Info.PreferredNickname
	}
	return id.String()
}

// Clone returns a copy whose sub-state slices can be replaced or
// appended to without affecting s.
func (s *RoomState) Clone() *RoomState {
	return &RoomState{
		Configuration: s.Configuration,
		Bans:          slices.Clone(s.Bans),
		Members:       slices.Clone(s.Members),
		MemberInfo:    slices.Clone(s.MemberInfo),
		Messages:      slices.Clone(s.Messages),
	}
}

// Verify checks every sub-state against the room, configuration first.
func (s *RoomState) Verify(params Parameters) error {
	if err := s.Configuration.Verify(s, params); err != nil {
		return err
	}
	if err := s.Members.Verify(s, params); err != nil {
		return err
	}
	if err := s.Bans.Verify(s, params); err != nil {
		return err
	}
	if err := s.MemberInfo.Verify(s, params); err != nil {
		return err
	}
	return s.Messages.Verify(s, params)
}

// Summarize summarizes every sub-state.
func (s *RoomState) Summarize(params Parameters) StateSummary {
	return StateSummary{
		Configuration: s.Configuration.Summarize(s, params),
		Bans:          s.Bans.Summarize(s, params),
		Members:       s.Members.Summarize(s, params),
		MemberInfo:    s.MemberInfo.Summarize(s, params),
		Messages:      s.Messages.Summarize(s, params),
	}
}

// Delta returns what a replica holding old is missing, or nil when it
// is missing nothing.
func (s *RoomState) Delta(params Parameters, old StateSummary) *StateDelta {
	var delta StateDelta
	if configuration, changed := s.Configuration.Delta(s, params, old.Configuration); changed {
		delta.Configuration = configuration
	}
	if bans, changed := s.Bans.Delta(s, params, old.Bans); changed {
		delta.Bans = bans
	}
	if members, changed := s.Members.Delta(s, params, old.Members); changed {
		delta.Members = &members
	}
	if infos, changed := s.MemberInfo.Delta(s, params, old.MemberInfo); changed {
		delta.MemberInfo = infos
	}
	if messages, changed := s.Messages.Delta(s, params, old.Messages); changed {
		delta.Messages = messages
	}
	if delta.IsEmpty() {
		return nil
	}
	return &delta
}

// MergeReport lists the sub-states whose deltas were applied and those
// that were discarded during a merge that otherwise succeeded.
type MergeReport struct {
	Applied  []Field
	Rejected []*FieldError
}

// Clean reports whether every sub-state merged.
func (r *MergeReport) Clean() bool { return len(r.Rejected) == 0 }

// Err joins the rejected sub-state errors, or returns nil.
func (r *MergeReport) Err() error {
	errs := make([]error, len(r.Rejected))
	for i, rejected := range r.Rejected {
		errs[i] = rejected
	}
	return errors.Join(errs...)
}

// isolate applies one sub-state delta. When apply or verify fails the
// sub-state is restored and the failure recorded.
func (r *MergeReport) isolate(field Field, apply, verify func() error, restore func()) {
	err := apply()
	if err == nil {
		err = verify()
	}
	if err != nil {
		restore()
		r.Rejected = append(r.Rejected, &FieldError{Field: field, Err: err})
		return
	}
	r.Applied = append(r.Applied, field)
}

// ApplyDelta folds delta into the room. Sub-states are applied in the
// order configuration, members, bans, member info, messages, each
// verified against the partially merged room. The result must pass
// Verify; otherwise s is left unchanged and the returned error wraps
// ErrStateRejected. The report is non-nil whenever err is nil.
func (s *RoomState) ApplyDelta(params Parameters, delta *StateDelta) (*MergeReport, error) {
	report := &MergeReport{}
	if delta.IsEmpty() {
		return report, nil
	}
	next := s.Clone()

	if delta.Configuration != nil {
		saved := next.Configuration
		report.isolate(FieldConfiguration,
			func() error { return next.Configuration.ApplyDelta(next, params, delta.Configuration) },
			func() error { return next.Configuration.Verify(next, params) },
			func() { next.Configuration = saved })
	}
	if delta.Members != nil {
		saved := next.Members
		report.isolate(FieldMembers,
			func() error { return next.Members.ApplyDelta(next, params, *delta.Members) },
			func() error { return next.Members.Verify(next, params) },
			func() { next.Members = saved })
	}
	if len(delta.Bans) > 0 {
		saved := next.Bans
		report.isolate(FieldBans,
			func() error { return next.Bans.ApplyDelta(next, params, delta.Bans) },
			func() error { return next.Bans.Verify(next, params) },
			func() { next.Bans = saved })
	}
	if len(delta.MemberInfo) > 0 {
		saved := next.MemberInfo
		report.isolate(FieldMemberInfo,
			func() error { return next.MemberInfo.ApplyDelta(next, params, delta.MemberInfo) },
			func() error { return next.MemberInfo.Verify(next, params) },
			func() { next.MemberInfo = saved })
	}
	if len(delta.Messages) > 0 {
		saved := next.Messages
		report.isolate(FieldMessages,
			func() error { return next.Messages.ApplyDelta(next, params, delta.Messages) },
			func() error { return next.Messages.Verify(next, params) },
			func() { next.Messages = saved })
	}

	if err := next.normalize(params); err != nil {
		return nil, err
	}
	if err := next.Verify(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStateRejected, err)
	}
	*s = *next
	return report, nil
}

// normalize re-applies empty deltas so that every sub-state reflects
// the merged configuration, bans, and membership. Lowered limits trim
// and bans remove their target's invite subtree. Records of departed
// members are dropped, including bans they issued; the second ban pass
// catches issuers the member pass removed.
func (s *RoomState) normalize(params Parameters) error {
	if err := s.Bans.ApplyDelta(s, params, nil); err != nil {
		return err
	}
	if err := s.Members.ApplyDelta(s, params, MembersDelta{}); err != nil {
		return err
	}
	if err := s.Bans.ApplyDelta(s, params, nil); err != nil {
		return err
	}
	if err := s.MemberInfo.ApplyDelta(s, params, nil); err != nil {
		return err
	}
	return s.Messages.ApplyDelta(s, params, nil)
}

// Merge folds another replica's full state into s: the incoming state
// computes its delta against s's summary, and that delta is applied.
func (s *RoomState) Merge(params Parameters, incoming *RoomState) (*MergeReport, error) {
	return s.ApplyDelta(params, incoming.Delta(params, s.Summarize(params)))
}
