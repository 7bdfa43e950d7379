// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package synchronizer keeps a local set of River rooms in step with a
// network host.
//
// A [Synchronizer] runs one event loop ([Synchronizer.Run]) that owns
// the connection and every room. Everything else talks to the loop:
// collaborator calls such as [Synchronizer.PostMessage] post a closure
// and wait for its result, a reader goroutine forwards inbound frames,
// a dial goroutine reports each connection attempt, and clock timers
// (handshake timeout, reconnect, retry backoff) deliver wake-ups. All
// of them carry a generation number so results from an abandoned
// connection are recognised and discarded.
//
// Each room is brought up on every connection with Put, then
// Subscribe. Once subscribed, local changes are sent as deltas and the
// host pushes UpdateNotification frames, which are merged with the
// same verification gate every replica uses. Accepted invitations wait
// in an [invite.Tracker] until the host returns the room, at which
// point the invitee's membership is added and the room joins the set.
//
// Progress is published through [Synchronizer.Status], a [Cell] that
// presentation code can poll or subscribe to.
package synchronizer
