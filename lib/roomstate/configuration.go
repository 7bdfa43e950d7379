// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"fmt"

	"github.com/bureau-foundation/river/lib/identity"
)

// Default limits for a new room.
const (
	DefaultMaxRecentMessages = 100
	DefaultMaxMessageSize    = 1000
	DefaultMaxMembers        = 200
	DefaultMaxUserBans       = 10
	DefaultMaxNicknameSize   = 50
)

// Configuration holds the owner-controlled settings of a room. Version
// increases with every change; replicas keep the highest version.
type Configuration struct {
	OwnerMemberID     identity.MemberID `cbor:"1,keyasint"`
	Version           uint64            `cbor:"2,keyasint"`
	Name              string            `cbor:"3,keyasint"`
	MaxRecentMessages uint32            `cbor:"4,keyasint"`
	MaxMessageSize    uint32            `cbor:"5,keyasint"`
	MaxMembers        uint32            `cbor:"6,keyasint"`
	MaxUserBans       uint32            `cbor:"7,keyasint"`
	MaxNicknameSize   uint32            `cbor:"8,keyasint"`
}

// DefaultConfiguration returns version 0 of a room's configuration.
func DefaultConfiguration(owner identity.MemberID, name string) Configuration {
	return Configuration{
		OwnerMemberID:     owner,
		Name:              name,
		MaxRecentMessages: DefaultMaxRecentMessages,
		MaxMessageSize:    DefaultMaxMessageSize,
		MaxMembers:        DefaultMaxMembers,
		MaxUserBans:       DefaultMaxUserBans,
		MaxNicknameSize:   DefaultMaxNicknameSize,
	}
}

// AuthorizedConfiguration is a Configuration signed by the owner.
type AuthorizedConfiguration struct {
	Config    Configuration `cbor:"1,keyasint"`
	Signature []byte        `cbor:"2,keyasint"`
}

// Verify checks the owner signature and that every limit is positive.
func (c *AuthorizedConfiguration) Verify(parent *RoomState, params Parameters) error {
	config := c.Config
	if config.OwnerMemberID != params.OwnerID() {
		return fmt.Errorf("configuration: %w", ErrWrongRoom)
	}
	if config.MaxRecentMessages == 0 || config.MaxMessageSize == 0 || config.MaxMembers == 0 || config.MaxNicknameSize == 0 {
		return fmt.Errorf("%w: zero limit in version %d", ErrInvalidConfiguration, config.Version)
	}
	if err := identity.Verify(params.Owner, config, c.Signature); err != nil {
		return fmt.Errorf("configuration version %d: %w", config.Version, err)
	}
	return nil
}

// Summarize returns the configuration version.
func (c *AuthorizedConfiguration) Summarize(parent *RoomState, params Parameters) uint64 {
	return c.Config.Version
}

// Delta returns the configuration when it is newer than old.
func (c *AuthorizedConfiguration) Delta(parent *RoomState, params Parameters, old uint64) (*AuthorizedConfiguration, bool) {
	if c.Config.Version <= old {
		return nil, false
	}
	copied := *c
	return &copied, true
}

// ApplyDelta replaces the configuration when the delta is newer.
func (c *AuthorizedConfiguration) ApplyDelta(parent *RoomState, params Parameters, delta *AuthorizedConfiguration) error {
	if delta == nil || delta.Config.Version <= c.Config.Version {
		return nil
	}
	*c = *delta
	return nil
}
