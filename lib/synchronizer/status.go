// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package synchronizer

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/river/lib/invite"
	"github.com/bureau-foundation/river/lib/roomstate"
)

// ConnectionState is the state of the link to the host.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	// ConnectionFailed means the last attempt failed; a reconnect is
	// scheduled. Status.Reason says why.
	ConnectionFailed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ConnectionFailed:
		return "error"
	default:
		return fmt.Sprintf("connection(%d)", int(s))
	}
}

// SyncState is how far a room has progressed through bring-up on the
// current connection.
type SyncState int

const (
	Unsynced SyncState = iota
	Putting
	Subscribing
	Subscribed
	// RoomFailed means a request for the room exhausted its attempts
	// or was refused. The room is retried on the next connection.
	RoomFailed
)

func (s SyncState) String() string {
	switch s {
	case Unsynced:
		return "unsynced"
	case Putting:
		return "putting"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	case RoomFailed:
		return "error"
	default:
		return fmt.Sprintf("room(%d)", int(s))
	}
}

// RoomStatus is the sync progress of one room.
type RoomStatus struct {
	State      SyncState
	Reason     string
	LastSynced time.Time
}

// InvitationStatus is the progress of one accepted invitation.
type InvitationStatus struct {
	Status invite.Status
	Reason string
}

// Status is the snapshot published on every change.
type Status struct {
	// Loaded is false until Run has read the stored rooms; before
	// that Rooms is empty regardless of what the store holds.
	Loaded      bool
	Connection  ConnectionState
	Reason      string
	Rooms       map[roomstate.RoomKey]RoomStatus
	Invitations map[roomstate.RoomKey]InvitationStatus
}
