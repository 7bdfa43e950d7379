// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Kind names the type of value carried by a river:v1 string.
type Kind string

const (
	KindVerifyingKey Kind = "vk"
	KindSigningKey   Kind = "sk"
	KindSignature    Kind = "sig"
)

const textPrefix = "river:v1:"

// Value is a parsed river:v1 string.
type Value struct {
	Kind  Kind
	Bytes []byte
}

var kindSizes = map[Kind]int{
	KindVerifyingKey: ed25519.PublicKeySize,
	KindSigningKey:   ed25519.SeedSize,
	KindSignature:    ed25519.SignatureSize,
}

// Encode renders raw bytes of the given kind.
func Encode(kind Kind, raw []byte) string {
	return textPrefix + string(kind) + ":" + base58.Encode(raw)
}

// EncodeVerifyingKey renders a verifying key.
func EncodeVerifyingKey(key ed25519.PublicKey) string {
	return Encode(KindVerifyingKey, key)
}

// EncodeSigningKey renders the seed of a signing key.
func EncodeSigningKey(key ed25519.PrivateKey) string {
	return Encode(KindSigningKey, key.Seed())
}

// EncodeSignature renders a signature.
func EncodeSignature(signature []byte) string {
	return Encode(KindSignature, signature)
}

// Parse decodes a river:v1 string, checking the prefix, the kind, the
// base58 payload, and the payload length for the kind.
func Parse(text string) (Value, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(text), textPrefix)
	if !ok {
		return Value{}, fmt.Errorf("%w: missing %q prefix", ErrMalformed, textPrefix)
	}
	kindText, payload, ok := strings.Cut(rest, ":")
	if !ok {
		return Value{}, fmt.Errorf("%w: missing kind separator", ErrMalformed)
	}
	kind := Kind(kindText)
	size, known := kindSizes[kind]
	if !known {
		return Value{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, kindText)
	}
	raw, err := base58.Decode(payload)
	if err != nil {
		return Value{}, fmt.Errorf("%w: base58: %v", ErrMalformed, err)
	}
	if len(raw) != size {
		return Value{}, fmt.Errorf("%w: %s is %d bytes, want %d", ErrMalformed, kind, len(raw), size)
	}
	return Value{Kind: kind, Bytes: raw}, nil
}

func parseKind(text string, want Kind) ([]byte, error) {
	value, err := Parse(text)
	if err != nil {
		return nil, err
	}
	if value.Kind != want {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrMalformed, value.Kind, want)
	}
	return value.Bytes, nil
}

// ParseVerifyingKey parses a river:v1:vk string.
func ParseVerifyingKey(text string) (ed25519.PublicKey, error) {
	raw, err := parseKind(text, KindVerifyingKey)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(raw), nil
}

// ParseSigningKey parses a river:v1:sk string.
func ParseSigningKey(text string) (ed25519.PrivateKey, error) {
	raw, err := parseKind(text, KindSigningKey)
	if err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(raw), nil
}

// ParseSignature parses a river:v1:sig string.
func ParseSignature(text string) ([]byte, error) {
	return parseKind(text, KindSignature)
}
