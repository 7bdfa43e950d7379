// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package roomstate is the replicated state of one River room and the
// rules every replica uses to verify and merge it.
//
// A room is owned by an Ed25519 key ([Parameters]). Its state
// ([RoomState]) is composed of five sub-states, each merged on its own:
//
//   - [AuthorizedConfiguration]: owner-signed limits and room name.
//   - [Members]: everyone but the owner, each entry signed by the
//     member who invited it. Walking InvitedBy links must reach the
//     owner.
//   - [Bans]: signed records that remove a member and everyone it
//     invited.
//   - [MemberInfos]: self-signed, versioned nicknames.
//   - [Messages]: signed messages ordered by (time, message id) and
//     trimmed to the configured window.
//
// Every sub-state implements the same four operations: Verify checks
// the invariants against the rest of the room, Summarize produces a
// compact description of what a replica holds, Delta computes what a
// peer with a given summary is missing, and ApplyDelta folds a delta
// in. Merging a whole room ([RoomState.Merge]) is "ask the incoming
// state for the delta against our summary, then apply it".
//
// Merges are isolated per sub-state: a sub-state whose delta fails to
// apply or verify keeps its previous value and the failure is recorded
// in the [MergeReport]. The merged room must then pass a full Verify;
// if it does not, the previous room is kept and [ErrStateRejected] is
// returned. Concurrent merges of the same deltas in any order produce
// identical states.
//
// Local edits go through the Author* methods, which validate before
// signing and return a [StateDelta] ready to apply locally and publish.
package roomstate
