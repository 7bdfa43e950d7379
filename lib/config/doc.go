// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads River's YAML configuration.
//
// Configuration comes from exactly one file: the path in RIVER_CONFIG
// (via [Load]) or an explicit path (via [LoadFile]). Values missing
// from the file keep their [Default]. Environment variables never
// override a setting; the only expansion is ${HOME}, ${RIVER_ROOT},
// and ${VAR:-default} inside path fields.
//
// Durations are written the way time.ParseDuration reads them
// ("3s", "500ms") and decode into [Duration].
//
// This package depends on no other River packages.
package config
