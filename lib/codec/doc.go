// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds River's single CBOR configuration.
//
// Everything River signs or ships is CBOR: room state records, deltas,
// invitations, host protocol envelopes, and the local room snapshot.
// Signatures are computed over the encoded bytes of a record, so the
// encoder must be deterministic. It uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, shortest integer forms, and no
// indefinite-length items.
//
// The decoder ignores fields it does not know. An older client can
// therefore read state written by a newer one and still verify the
// fields it understands.
//
// Wire structs use integer keys:
//
//	type Member struct {
//	    Owner   identity.MemberID `cbor:"1,keyasint"`
//	    Invited identity.MemberID `cbor:"2,keyasint"`
//	}
//
// Buffer-oriented callers use Marshal and Unmarshal; stream-oriented
// callers use NewEncoder and NewDecoder.
package codec
