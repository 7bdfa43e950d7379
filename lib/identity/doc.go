// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity holds the cryptographic identity primitives shared
// by every River room: Ed25519 keys, the hashed member identifier, and
// the textual key format.
//
// Every signature in River covers the deterministic CBOR encoding (see
// lib/codec) of a record. [Sign] and [Verify] are the only place that
// encoding-then-signing happens, so the signed byte layout is defined
// once.
//
// Keys and signatures travel as text in the form
//
//	river:v1:vk:<base58>   verifying key (32 bytes)
//	river:v1:sk:<base58>   signing key seed (32 bytes)
//	river:v1:sig:<base58>  signature (64 bytes)
//
// [Parse] is the only parser for that format and rejects anything that
// does not carry one of the three prefixes.
package identity
