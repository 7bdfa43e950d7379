// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets River code ask for time without calling the time
// package directly.
//
// Components that wait (the synchronizer's handshake timer, its
// reconnect and retry backoff, the websocket keepalive) hold a Clock.
// Production wiring passes Real(); tests pass Fake() and drive time with
// Advance:
//
//	fake := clock.Fake(time.Unix(1_700_000_000, 0))
//	sync := synchronizer.New(synchronizer.Config{Clock: fake, ...})
//	go sync.Run(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(5 * time.Second)
//
// WaitForTimers closes the race between a goroutine arming a timer and
// the test moving the clock past it.
package clock
