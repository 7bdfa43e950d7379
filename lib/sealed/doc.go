// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts River's signing keys at rest with age.
//
// A River installation may keep an age x25519 identity in a file
// (written by [WriteIdentityFile], in the same format age-keygen
// produces). When one is configured, the room store seals every room
// signing key to that identity's recipient before the key touches the
// database, and opens it again on load. Ciphertext is the raw binary
// age format since it is embedded in a CBOR record, not a text field.
//
// Key exports:
//
//   - [GenerateIdentity] -- fresh x25519 identity
//   - [LoadIdentityFile] / [WriteIdentityFile] -- identity files
//   - [Seal] / [Open] -- encrypt to recipients, decrypt with an identity
//   - [ParseRecipient] -- validate an age1... public key
package sealed
