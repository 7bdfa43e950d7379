// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive after the connection has
// been closed by either side.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a bidirectional, message-oriented connection.
type Conn interface {
	// Send writes one frame. Safe to call from multiple goroutines.
	Send(ctx context.Context, frame []byte) error

	// Receive blocks for the next frame. Only one goroutine may call
	// Receive at a time.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the connection. Pending and later Receive calls
	// return an error.
	Close() error
}

// Dialer opens connections to a host.
type Dialer interface {
	// Dial connects to address. The handshake is complete when Dial
	// returns a Conn.
	Dial(ctx context.Context, address string) (Conn, error)
}
