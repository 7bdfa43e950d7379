// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package synchronizer

import "errors"

var (
	// ErrConnection wraps dial and receive failures.
	ErrConnection = errors.New("synchronizer: connection error")

	// ErrHandshakeTimeout means a dial did not complete within the
	// handshake timeout.
	ErrHandshakeTimeout = errors.New("synchronizer: handshake timed out")

	ErrUnknownRoom = errors.New("synchronizer: unknown room")
	ErrRoomExists  = errors.New("synchronizer: room already present")

	// ErrStopped is returned by calls made after Run has returned.
	ErrStopped = errors.New("synchronizer: stopped")
)
