// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries River host-protocol frames between a
// client and its network host.
//
// A [Conn] is a message-oriented, bidirectional channel: each Send
// delivers one frame and each Receive returns one frame. A [Dialer]
// opens Conns. The synchronizer sees only these two interfaces.
//
// [WebSocketDialer] is the production implementation, built on
// gorilla/websocket with binary frames, a read limit, and ping/pong
// keepalive. [Accept] is its server-side counterpart for hosts and
// tests. [Pipe] and [MemoryDialer] connect two in-process endpoints;
// tests use them to play the host.
package transport
