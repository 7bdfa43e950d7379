// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by River's tests.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so individual tests never touch the wall clock. Everything
// else in the test suite drives time through lib/clock's FakeClock.
//
// Helpers fail the test with t.Fatalf rather than returning errors.
package testutil
