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

// outbound is one request and its retry bookkeeping.
type outbound struct {
	request    *hostproto.Request
	attempt    int
	generation uint64

	// invitation is set for the Get that retrieves an accepted
	// invitation's room.
	invitation bool
}

// send transmits a new request for key on the current connection.
func (s *Synchronizer) send(ctx context.Context, request *hostproto.Request, invitation bool) *outbound {
	out := &outbound{request: request, generation: s.connGeneration, invitation: invitation}
	s.transmit(ctx, out)
	return out
}

// transmit makes one attempt at sending out. A failed attempt is
// retried after RetryBackoff until RequestAttempts is reached, then
// the room or invitation is marked failed.
func (s *Synchronizer) transmit(ctx context.Context, out *outbound) {
	if s.conn == nil || out.generation != s.connGeneration {
		return
	}
	out.attempt++
	err := s.write(ctx, out.request)
	if err == nil {
		s.logger.Debug("request sent",
			"room", out.request.Key,
			"kind", out.request.Kind,
			"attempt", out.attempt,
		)
		return
	}

	if out.attempt >= s.config.RequestAttempts {
		reason := fmt.Sprintf("%s failed after %d attempts: %v", out.request.Kind, out.attempt, err)
		s.logger.Warn("request abandoned", "room", out.request.Key, "kind", out.request.Kind, "error", err)
		s.abandon(ctx, out, reason)
		return
	}
	s.logger.Debug("request failed, retrying",
		"room", out.request.Key,
		"kind", out.request.Kind,
		"attempt", out.attempt,
		"error", err,
	)
	s.after(s.config.RetryBackoff, func(ctx context.Context) {
		if s.stillWanted(out) {
			s.transmit(ctx, out)
		}
	})
}

func (s *Synchronizer) write(ctx context.Context, request *hostproto.Request) error {
	frame, err := request.Encode()
	if err != nil {
		return err
	}
	// A send that cannot complete within the handshake timeout counts
	// as a failed attempt rather than stalling the loop.
	sendCtx, cancel := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	defer cancel()
	return s.conn.Send(sendCtx, frame)
}

// stillWanted reports whether a retry of out is still meaningful: the
// connection it was sent on is alive and its room (or invitation) is
// still waiting on it.
func (s *Synchronizer) stillWanted(out *outbound) bool {
	if s.conn == nil || out.generation != s.connGeneration {
		return false
	}
	if out.invitation {
		pending, ok := s.invites.Get(out.request.Key)
		return ok && pending.Status == invite.Retrieving
	}
	r, ok := s.rooms[out.request.Key]
	if !ok {
		return false
	}
	if out.request.Kind == hostproto.Update {
		// Updates are not superseded by later ones: each carries its
		// own change.
		return r.sync == Subscribed
	}
	return r.inflight == out
}

func (s *Synchronizer) abandon(ctx context.Context, out *outbound, reason string) {
	key := out.request.Key
	if out.invitation {
		if err := s.invites.Fail(key, reason); err != nil {
			s.logger.Debug("invitation no longer pending", "room", key)
		}
		return
	}
	if s.stillWanted(out) {
		s.markFailed(s.rooms[key], reason)
	}
}

func (s *Synchronizer) markFailed(r *room, reason string) {
	r.sync = RoomFailed
	r.reason = reason
	r.inflight = nil
	s.logger.Warn("room sync failed", "room", r.params.Key(), "reason", reason)
}

// bringUp starts Put for every room that is not yet synchronized on
// this connection and Get for every accepted invitation.
func (s *Synchronizer) bringUp(ctx context.Context) {
	for _, key := range s.sortedRoomKeys() {
		r := s.rooms[key]
		if r.sync == Unsynced || r.sync == RoomFailed {
			s.put(ctx, r)
		}
	}
	for _, key := range s.invites.Retrieving() {
		s.send(ctx, hostproto.NewGet(key), true)
	}
}

func (s *Synchronizer) put(ctx context.Context, r *room) {
	request, err := hostproto.NewPut(r.params, r.state)
	if err != nil {
		s.markFailed(r, err.Error())
		return
	}
	r.sync = Putting
	r.reason = ""
	// The Put carries everything changed so far.
	r.dirty = false
	r.inflight = s.send(ctx, request, false)
}

func (s *Synchronizer) subscribe(ctx context.Context, r *room) {
	r.sync = Subscribing
	r.inflight = s.send(ctx, hostproto.NewSubscribe(r.params.Key()), false)
}

// subscribed completes bring-up, publishing changes made while the
// room was coming up.
func (s *Synchronizer) subscribed(ctx context.Context, r *room) {
	r.sync = Subscribed
	r.inflight = nil
	s.logger.Info("room subscribed", "room", r.params.Key())
	if !r.dirty {
		return
	}
	request, err := hostproto.NewStateUpdate(r.params.Key(), r.state)
	if err != nil {
		s.markFailed(r, err.Error())
		return
	}
	r.dirty = false
	r.inflight = s.send(ctx, request, false)
}

// applyLocal applies a locally authored delta and publishes it.
func (s *Synchronizer) applyLocal(ctx context.Context, r *room, delta *roomstate.StateDelta) error {
	report, err := r.state.ApplyDelta(r.params, delta)
	if err != nil {
		return err
	}
	if !report.Clean() {
		// Locally authored deltas are checked before signing, so a
		// rejection here is a bug in the authoring path.
		return report.Err()
	}
	s.persist(ctx)

	if r.sync != Subscribed || s.conn == nil {
		r.dirty = true
		return nil
	}
	request, err := hostproto.NewDeltaUpdate(r.params.Key(), delta)
	if err != nil {
		return err
	}
	r.inflight = s.send(ctx, request, false)
	return nil
}
