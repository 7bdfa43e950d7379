// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the river binary: a tree of
// Commands dispatched by name, pflag flag sets parsed per command,
// generated help, and typo suggestions for unknown commands and flags.
//
// Commands receive a context from main that is cancelled on SIGINT or
// SIGTERM. Handlers that want a non-zero exit without an "error:" line
// return an [ExitError].
package cli
