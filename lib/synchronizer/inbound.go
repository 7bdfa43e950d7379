// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package synchronizer

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/river/lib/hostproto"
	"github.com/bureau-foundation/river/lib/invite"
	"github.com/bureau-foundation/river/lib/roomstate"
)

func (s *Synchronizer) handleFrame(ctx context.Context, frame inboundFrame) {
	if frame.generation != s.connGeneration || s.conn == nil {
		return
	}
	if frame.err != nil {
		s.fail(ctx, fmt.Errorf("%w: %w", ErrConnection, frame.err))
		return
	}
	response, err := hostproto.DecodeResponse(frame.data)
	if err != nil {
		s.logger.Warn("dropping undecodable frame", "error", err, "bytes", len(frame.data))
		return
	}

	key := response.Key
	r, known := s.rooms[key]
	if !known {
		if response.Kind == hostproto.GetResponse {
			if pending, ok := s.invites.Get(key); ok && pending.Status == invite.Retrieving {
				s.resolveInvitation(ctx, pending, response)
				return
			}
		}
		if response.Kind == hostproto.ErrorResponse {
			if pending, ok := s.invites.Get(key); ok && pending.Status == invite.Retrieving {
				s.invites.Fail(key, response.Message)
				s.logger.Warn("invitation retrieval refused", "room", key, "message", response.Message)
				return
			}
		}
		s.logger.Debug("dropping response for unknown room", "room", key, "kind", response.Kind)
		return
	}

	switch response.Kind {
	case hostproto.PutResponse:
		if r.sync == Putting && s.answers(r, response) {
			s.subscribe(ctx, r)
		}
	case hostproto.SubscribeResponse:
		if r.sync != Subscribing || !s.answers(r, response) {
			return
		}
		if !response.Accepted {
			reason := response.Message
			if reason == "" {
				reason = "subscription refused"
			}
			s.markFailed(r, reason)
			return
		}
		s.subscribed(ctx, r)
	case hostproto.UpdateResponse:
		if s.answers(r, response) {
			r.inflight = nil
		}
	case hostproto.GetResponse, hostproto.UpdateNotification:
		s.mergeRemote(ctx, r, response)
	case hostproto.ErrorResponse:
		if r.inflight != nil && r.inflight.request.ID == response.RequestID {
			s.markFailed(r, response.Message)
			return
		}
		s.logger.Warn("host reported an error", "room", key, "request", response.RequestID, "message", response.Message)
	}
}

// answers reports whether response replies to the request the room is
// waiting on. Responses without a request id are accepted.
func (s *Synchronizer) answers(r *room, response *hostproto.Response) bool {
	if response.RequestID == "" {
		return true
	}
	return r.inflight != nil && r.inflight.request.ID == response.RequestID
}

// mergeRemote merges a state or delta pushed by the host. Payloads that
// fail to decode or verify are logged and dropped.
func (s *Synchronizer) mergeRemote(ctx context.Context, r *room, response *hostproto.Response) {
	key := r.params.Key()
	var (
		report *roomstate.MergeReport
		err    error
	)
	if len(response.State) > 0 {
		var incoming *roomstate.RoomState
		incoming, err = hostproto.DecodeState(response.State)
		if err == nil {
			report, err = r.state.Merge(r.params, incoming)
		}
	} else {
		var delta *roomstate.StateDelta
		delta, err = hostproto.DecodeDelta(response.Delta)
		if err == nil {
			report, err = r.state.ApplyDelta(r.params, delta)
		}
	}
	if err != nil {
		s.logger.Warn("dropping remote change", "room", key, "kind", response.Kind, "error", err)
		return
	}
	if !report.Clean() {
		if len(report.Applied) == 0 {
			s.logger.Warn("dropping remote change", "room", key, "kind", response.Kind, "error", report.Err())
			return
		}
		s.logger.Warn("remote change partially rejected", "room", key, "error", report.Err())
	}
	r.lastSynced = s.clock.Now()
	s.persist(ctx)
}

// resolveInvitation turns the first GetResponse for an accepted
// invitation into a room: it adds the invitee's membership and
// nickname, then brings the room up like any other.
func (s *Synchronizer) resolveInvitation(ctx context.Context, pending invite.Pending, response *hostproto.Response) {
	invitation := pending.Invitation
	key := invitation.Key()
	params := invitation.Parameters()

	state, err := hostproto.DecodeState(response.State)
	if err == nil {
		err = state.Verify(params)
	}
	var delta *roomstate.StateDelta
	if err == nil {
		delta, err = state.JoinDelta(params, invitation.Invitee, invitation.SigningKey(), pending.PreferredNickname)
	}
	if err == nil {
		var report *roomstate.MergeReport
		report, err = state.ApplyDelta(params, delta)
		if err == nil && !report.Clean() {
			err = report.Err()
		}
	}
	if err != nil {
		reason := fmt.Sprintf("joining room: %v", err)
		s.invites.Fail(key, reason)
		s.logger.Warn("invitation could not be resolved", "room", key, "error", err)
		return
	}

	if _, ok := s.invites.Resolve(key); !ok {
		return
	}
	r := &room{
		params:     params,
		state:      state,
		signingKey: invitation.SigningKey(),
		lastSynced: s.clock.Now(),
	}
	s.rooms[key] = r
	s.logger.Info("invitation accepted", "room", key, "nickname", pending.PreferredNickname)
	s.persist(ctx)
	if s.conn != nil {
		s.put(ctx, r)
	}
}
