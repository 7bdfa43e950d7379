// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustIdentity(t *testing.T) *Identity {
	t.Helper()
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	return identity
}

func TestGenerateIdentityFormats(t *testing.T) {
	identity := mustIdentity(t)
	if !strings.HasPrefix(identity.String(), "AGE-SECRET-KEY-1") {
		t.Errorf("secret key %q lacks AGE-SECRET-KEY-1 prefix", identity.String())
	}
	if !strings.HasPrefix(identity.Recipient(), "age1") {
		t.Errorf("recipient %q lacks age1 prefix", identity.Recipient())
	}
	if err := ParseRecipient(identity.Recipient()); err != nil {
		t.Errorf("ParseRecipient(own recipient): %v", err)
	}
	if mustIdentity(t).String() == identity.String() {
		t.Error("two generated identities are identical")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	identity := mustIdentity(t)
	plaintext := []byte("river signing key seed")

	ciphertext, err := Seal(plaintext, identity.Recipient())
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext contains the plaintext")
	}
	opened, err := Open(ciphertext, identity)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("Open = %q, want %q", opened, plaintext)
	}
}

func TestSealMultipleRecipients(t *testing.T) {
	first, second := mustIdentity(t), mustIdentity(t)
	ciphertext, err := Seal([]byte("shared"), first.Recipient(), second.Recipient())
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	for name, identity := range map[string]*Identity{"first": first, "second": second} {
		opened, err := Open(ciphertext, identity)
		if err != nil {
			t.Fatalf("Open with %s: %v", name, err)
		}
		if string(opened) != "shared" {
			t.Errorf("Open with %s = %q", name, opened)
		}
	}
}

func TestOpenWithWrongIdentity(t *testing.T) {
	ciphertext, err := Seal([]byte("secret"), mustIdentity(t).Recipient())
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(ciphertext, mustIdentity(t)); err == nil {
		t.Fatal("Open with the wrong identity succeeded")
	}
}

func TestOpenCorruptedCiphertext(t *testing.T) {
	identity := mustIdentity(t)
	ciphertext, err := Seal([]byte("secret"), identity.Recipient())
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xff
	if _, err := Open(ciphertext, identity); err == nil {
		t.Fatal("Open of corrupted ciphertext succeeded")
	}
}

func TestSealRejectsBadRecipients(t *testing.T) {
	if _, err := Seal([]byte("x")); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("Seal without recipients: %v, want ErrNoRecipients", err)
	}
	if _, err := Seal([]byte("x"), "age1notakey"); err == nil {
		t.Error("Seal accepted a malformed recipient")
	}
}

func TestParseIdentity(t *testing.T) {
	identity := mustIdentity(t)
	parsed, err := ParseIdentity(identity.String())
	if err != nil {
		t.Fatalf("ParseIdentity: %v", err)
	}
	if parsed.Recipient() != identity.Recipient() {
		t.Error("parsed identity has a different recipient")
	}
	if _, err := ParseIdentity("AGE-SECRET-KEY-1BOGUS"); err == nil {
		t.Error("ParseIdentity accepted garbage")
	}
}

func TestIdentityFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.txt")
	identity := mustIdentity(t)
	if err := WriteIdentityFile(path, identity); err != nil {
		t.Fatalf("WriteIdentityFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("identity file mode = %o, want 600", mode)
	}

	loaded, err := LoadIdentityFile(path)
	if err != nil {
		t.Fatalf("LoadIdentityFile: %v", err)
	}
	if loaded.String() != identity.String() {
		t.Error("loaded identity differs from written identity")
	}

	if err := WriteIdentityFile(path, mustIdentity(t)); err == nil {
		t.Error("WriteIdentityFile overwrote an existing file")
	}
}

func TestLoadIdentityFileRejectsMultiple(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.txt")
	contents := mustIdentity(t).String() + "\n" + mustIdentity(t).String() + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadIdentityFile(path); !errors.Is(err, ErrIdentityFile) {
		t.Errorf("LoadIdentityFile: %v, want ErrIdentityFile", err)
	}
}
