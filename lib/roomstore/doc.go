// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package roomstore persists a synchronizer's room set.
//
// Storage itself is a [Delegate]: a last-write-wins key/value store
// with Get and Set. [Memory] backs tests; [SQLite] keeps values in a
// single table through lib/sqlitepool.
//
// [Store] sits on a delegate and owns the snapshot format. The whole
// room set is written under one key as a CBOR document, compressed
// with the configured [CompressionTag], with each room's signing key
// sealed to an age identity when one is configured. A snapshot that
// fails to decode, decompress, or unseal is reported as [ErrCorrupt]
// and is never partially loaded.
package roomstore
