// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// DomainKey is a 32-byte BLAKE3 key. Each kind of derived identifier
// hashes under its own key so identical input bytes never produce the
// same identifier in two domains.
type DomainKey [32]byte

// NewDomainKey returns the ASCII bytes of name zero-padded to 32 bytes.
// Panics if name is longer than 32 bytes; domain keys are package-level
// constants, so that is a programming error.
func NewDomainKey(name string) DomainKey {
	var key DomainKey
	if len(name) > len(key) {
		panic("identity: domain name longer than 32 bytes: " + name)
	}
	copy(key[:], name)
	return key
}

// Digest is a 16-byte keyed BLAKE3 digest, used for member, message,
// and ban identifiers.
type Digest [16]byte

// ShortHash returns the first 16 bytes of the keyed BLAKE3 hash of the
// concatenated parts.
func ShortHash(domain DomainKey, parts ...[]byte) Digest {
	hasher, err := blake3.NewKeyed(domain[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("identity: blake3 keyed hasher: " + err.Error())
	}
	for _, part := range parts {
		hasher.Write(part)
	}
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

var memberDomainKey = NewDomainKey("river.member.id")

// MemberID identifies a member by a hash of its verifying key. The
// room owner has a MemberID too, derived the same way.
type MemberID Digest

// MemberIDOf derives the MemberID of a verifying key.
func MemberIDOf(key ed25519.PublicKey) MemberID {
	return MemberID(ShortHash(memberDomainKey, key))
}

// Compare orders MemberIDs by their bytes.
func (id MemberID) Compare(other MemberID) int {
	return bytes.Compare(id[:], other[:])
}

// IsZero reports whether id is the zero value.
func (id MemberID) IsZero() bool {
	return id == MemberID{}
}

// String returns the base58 form, shortened to eight characters the
// way River prints member ids in listings.
func (id MemberID) String() string {
	encoded := base58.Encode(id[:])
	if len(encoded) > 8 {
		return encoded[:8]
	}
	return encoded
}
