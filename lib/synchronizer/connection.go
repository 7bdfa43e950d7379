// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package synchronizer

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/river/transport"
)

type dialResult struct {
	generation uint64
	conn       transport.Conn
	err        error
}

type inboundFrame struct {
	generation uint64
	data       []byte
	err        error
}

// connect starts a dial attempt and arms its handshake timer.
func (s *Synchronizer) connect(ctx context.Context) {
	s.dialGeneration++
	generation := s.dialGeneration
	s.connState = Connecting
	s.connReason = ""

	dialCtx, cancel := context.WithCancel(ctx)
	s.dialCancel = cancel
	s.handshake = s.after(s.config.HandshakeTimeout, func(ctx context.Context) {
		s.handshakeExpired(ctx, generation)
	})

	s.logger.Debug("dialing host", "url", s.config.URL, "attempt", generation)
	go func() {
		conn, err := s.config.Dialer.Dial(dialCtx, s.config.URL)
		select {
		case s.dials <- dialResult{generation: generation, conn: conn, err: err}:
		case <-s.done:
			if conn != nil {
				conn.Close()
			}
		}
	}()
}

func (s *Synchronizer) handleDial(ctx context.Context, result dialResult) {
	if result.generation != s.dialGeneration || s.connState != Connecting {
		// Abandoned attempt, typically one that outlived its handshake
		// timer.
		if result.conn != nil {
			result.conn.Close()
		}
		s.logger.Debug("discarding stale dial result", "attempt", result.generation)
		return
	}
	stopTimer(s.handshake)
	s.handshake = nil
	s.dialCancel()

	if result.err != nil {
		s.fail(ctx, fmt.Errorf("%w: %w", ErrConnection, result.err))
		return
	}

	s.conn = result.conn
	s.connGeneration++
	s.connState = Connected
	s.connReason = ""
	s.logger.Info("connected to host", "url", s.config.URL)

	go s.readFrames(ctx, result.conn, s.connGeneration)
	s.bringUp(ctx)
}

func (s *Synchronizer) handshakeExpired(ctx context.Context, generation uint64) {
	if generation != s.dialGeneration || s.connState != Connecting {
		return
	}
	s.handshake = nil
	s.dialCancel()
	s.fail(ctx, fmt.Errorf("%w after %s", ErrHandshakeTimeout, s.config.HandshakeTimeout))
}

// readFrames forwards every frame from conn into the loop until the
// connection fails.
func (s *Synchronizer) readFrames(ctx context.Context, conn transport.Conn, generation uint64) {
	for {
		data, err := conn.Receive(ctx)
		select {
		case s.frames <- inboundFrame{generation: generation, data: data, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// fail tears down the connection, returns every room to Unsynced, and
// schedules a reconnect.
func (s *Synchronizer) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connGeneration++
	s.dialGeneration++
	stopTimer(s.handshake)
	s.handshake = nil

	s.connState = ConnectionFailed
	s.connReason = err.Error()
	for _, r := range s.rooms {
		r.sync = Unsynced
		r.reason = ""
		r.inflight = nil
	}
	s.logger.Warn("host connection failed",
		"error", err,
		"retry_in", s.config.ReconnectInterval,
	)

	stopTimer(s.reconnect)
	s.reconnect = s.after(s.config.ReconnectInterval, func(ctx context.Context) {
		s.reconnect = nil
		if s.connState == ConnectionFailed {
			s.connect(ctx)
		}
	})
}
