// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/bureau-foundation/river/lib/codec"
)

var (
	// ErrSignatureInvalid means a signature does not verify against
	// the key it was checked with.
	ErrSignatureInvalid = errors.New("identity: signature invalid")

	// ErrMalformed means a textual key, signature, or token could not
	// be parsed.
	ErrMalformed = errors.New("identity: malformed value")
)

// GenerateSigningKey returns a fresh Ed25519 signing key.
func GenerateSigningKey() (ed25519.PrivateKey, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generating signing key: %w", err)
	}
	return private, nil
}

// VerifyingKeyOf returns the public half of a signing key.
func VerifyingKeyOf(key ed25519.PrivateKey) ed25519.PublicKey {
	return key.Public().(ed25519.PublicKey)
}

// Sign encodes v with the deterministic CBOR codec and signs the
// result.
func Sign(key ed25519.PrivateKey, v any) ([]byte, error) {
	payload, err := codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("identity: encoding signed payload: %w", err)
	}
	return ed25519.Sign(key, payload), nil
}

// Verify re-encodes v and checks signature against key.
func Verify(key ed25519.PublicKey, v any, signature []byte) error {
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: verifying key is %d bytes", ErrSignatureInvalid, len(key))
	}
	payload, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("identity: encoding signed payload: %w", err)
	}
	if !ed25519.Verify(key, payload, signature) {
		return ErrSignatureInvalid
	}
	return nil
}
