// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

var (
	// ErrNoRecipients is returned by Seal when called without a
	// recipient.
	ErrNoRecipients = errors.New("sealed: at least one recipient is required")

	// ErrIdentityFile means an identity file did not contain exactly
	// one x25519 identity.
	ErrIdentityFile = errors.New("sealed: identity file must hold exactly one x25519 identity")
)

// Identity is an age x25519 private key. Its String form
// (AGE-SECRET-KEY-1...) must never be logged.
type Identity struct {
	key *age.X25519Identity
}

// GenerateIdentity returns a new random identity.
func GenerateIdentity() (*Identity, error) {
	key, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating identity: %w", err)
	}
	return &Identity{key: key}, nil
}

// ParseIdentity parses an AGE-SECRET-KEY-1... string.
func ParseIdentity(text string) (*Identity, error) {
	key, err := age.ParseX25519Identity(text)
	if err != nil {
		return nil, fmt.Errorf("sealed: invalid identity: %w", err)
	}
	return &Identity{key: key}, nil
}

// Recipient returns the public key (age1...) that seals to this
// identity.
func (i *Identity) Recipient() string {
	return i.key.Recipient().String()
}

// String returns the secret key encoding.
func (i *Identity) String() string {
	return i.key.String()
}

// LoadIdentityFile reads an identity file in age-keygen format.
// Comment lines are ignored.
func LoadIdentityFile(path string) (*Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sealed: %w", err)
	}
	defer file.Close()

	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing %s: %w", path, err)
	}
	if len(identities) != 1 {
		return nil, fmt.Errorf("%w: %s has %d", ErrIdentityFile, path, len(identities))
	}
	key, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds a %T", ErrIdentityFile, path, identities[0])
	}
	return &Identity{key: key}, nil
}

// WriteIdentityFile writes identity to path with mode 0600. It refuses
// to overwrite an existing file.
func WriteIdentityFile(path string, identity *Identity) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("sealed: %w", err)
	}
	_, err = fmt.Fprintf(file, "# public key: %s\n%s\n", identity.Recipient(), identity.String())
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("sealed: writing %s: %w", path, err)
	}
	return nil
}

// ParseRecipient validates an age x25519 public key.
func ParseRecipient(recipient string) error {
	if _, err := age.ParseX25519Recipient(recipient); err != nil {
		return fmt.Errorf("sealed: invalid recipient: %w", err)
	}
	return nil
}

// Seal encrypts plaintext so that any of the recipients can open it.
func Seal(plaintext []byte, recipients ...string) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	parsed := make([]age.Recipient, 0, len(recipients))
	for _, text := range recipients {
		recipient, err := age.ParseX25519Recipient(text)
		if err != nil {
			return nil, fmt.Errorf("sealed: parsing recipient %q: %w", text, err)
		}
		parsed = append(parsed, recipient)
	}

	var out bytes.Buffer
	writer, err := age.Encrypt(&out, parsed...)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing: %w", err)
	}
	return out.Bytes(), nil
}

// Open decrypts ciphertext produced by Seal.
func Open(ciphertext []byte, identity *Identity) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity.key)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("sealed: reading plaintext: %w", err)
	}
	return plaintext, nil
}
