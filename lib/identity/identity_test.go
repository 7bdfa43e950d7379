// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"
)

func mustKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	key, err := GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	return key
}

func TestMemberIDDeterministicAndDistinct(t *testing.T) {
	first := mustKey(t)
	second := mustKey(t)

	a := MemberIDOf(VerifyingKeyOf(first))
	b := MemberIDOf(VerifyingKeyOf(first))
	if a != b {
		t.Fatalf("MemberIDOf not deterministic: %v != %v", a, b)
	}
	if a == MemberIDOf(VerifyingKeyOf(second)) {
		t.Fatal("distinct keys produced the same MemberID")
	}
	if a.IsZero() {
		t.Fatal("derived MemberID is zero")
	}
}

func TestShortHashDomainSeparation(t *testing.T) {
	data := []byte("same input")
	one := ShortHash(NewDomainKey("river.test.one"), data)
	two := ShortHash(NewDomainKey("river.test.two"), data)
	if one == two {
		t.Error("different domains produced the same digest")
	}
	split := ShortHash(NewDomainKey("river.test.one"), []byte("same "), []byte("input"))
	if split != one {
		t.Error("ShortHash is not a hash of the concatenated parts")
	}
}

func TestSignVerify(t *testing.T) {
	type record struct {
		Name    string `cbor:"1,keyasint"`
		Version uint64 `cbor:"2,keyasint"`
	}
	key := mustKey(t)
	original := record{Name: "lobby", Version: 1}

	signature, err := Sign(key, original)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := Verify(VerifyingKeyOf(key), original, signature); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	tampered := original
	tampered.Version = 2
	if err := Verify(VerifyingKeyOf(key), tampered, signature); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("tampered record: got %v, want ErrSignatureInvalid", err)
	}

	other := mustKey(t)
	if err := Verify(VerifyingKeyOf(other), original, signature); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("wrong key: got %v, want ErrSignatureInvalid", err)
	}
}

func TestTextRoundTrip(t *testing.T) {
	key := mustKey(t)

	verifying, err := ParseVerifyingKey(EncodeVerifyingKey(VerifyingKeyOf(key)))
	if err != nil {
		t.Fatalf("ParseVerifyingKey: %v", err)
	}
	if !verifying.Equal(VerifyingKeyOf(key)) {
		t.Error("verifying key changed across encode/parse")
	}

	signing, err := ParseSigningKey(EncodeSigningKey(key))
	if err != nil {
		t.Fatalf("ParseSigningKey: %v", err)
	}
	if !signing.Equal(key) {
		t.Error("signing key changed across encode/parse")
	}

	signature := ed25519.Sign(key, []byte("payload"))
	parsed, err := ParseSignature(EncodeSignature(signature))
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	if !bytes.Equal(parsed, signature) {
		t.Error("signature changed across encode/parse")
	}
}

func TestParseRejects(t *testing.T) {
	key := mustKey(t)
	valid := EncodeVerifyingKey(VerifyingKeyOf(key))
	payload := strings.TrimPrefix(valid, "river:v1:vk:")

	tests := []struct {
		name  string
		input string
	}{
		{"no prefix", payload},
		{"wrong version", "river:v2:vk:" + payload},
		{"unknown kind", "river:v1:pk:" + payload},
		{"bad base58", "river:v1:vk:0OIl"},
		{"wrong length", "river:v1:vk:" + payload[:10]},
		{"missing kind separator", "river:v1:vk"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Parse(test.input); !errors.Is(err, ErrMalformed) {
				t.Errorf("Parse(%q) = %v, want ErrMalformed", test.input, err)
			}
		})
	}

	if _, err := ParseSigningKey(valid); !errors.Is(err, ErrMalformed) {
		t.Errorf("ParseSigningKey on a verifying key = %v, want ErrMalformed", err)
	}
}
