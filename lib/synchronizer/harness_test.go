// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package synchronizer

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/river/lib/clock"
	"github.com/bureau-foundation/river/lib/codec"
	"github.com/bureau-foundation/river/lib/hostproto"
	"github.com/bureau-foundation/river/lib/identity"
	"github.com/bureau-foundation/river/lib/roomstate"
	"github.com/bureau-foundation/river/lib/roomstore"
	"github.com/bureau-foundation/river/lib/testutil"
	"github.com/bureau-foundation/river/transport"
)

const testTimeout = 5 * time.Second

var errInjected = errors.New("injected send failure")

// flakyDialer dials in-memory pipes whose sends can be made to fail.
type flakyDialer struct {
	inner *transport.MemoryDialer

	// failSends is the number of upcoming sends to fail.
	failSends atomic.Int32
	sends     atomic.Int32
}

func (d *flakyDialer) Dial(ctx context.Context, address string) (transport.Conn, error) {
	conn, err := d.inner.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return &flakyConn{Conn: conn, dialer: d}, nil
}

type flakyConn struct {
	transport.Conn
	dialer *flakyDialer
}

func (c *flakyConn) Send(ctx context.Context, frame []byte) error {
	c.dialer.sends.Add(1)
	if c.dialer.failSends.Add(-1) >= 0 {
		return errInjected
	}
	return c.Conn.Send(ctx, frame)
}

type harness struct {
	t      *testing.T
	clock  *clock.FakeClock
	dialer *flakyDialer
	sync   *Synchronizer
}

func startSynchronizer(t *testing.T, store *roomstore.Store) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  clock.Fake(time.Unix(1700000000, 0)),
		dialer: &flakyDialer{inner: transport.NewMemoryDialer()},
	}
	var err error
	h.sync, err = New(Config{
		URL:    "memory://host",
		Dialer: h.dialer,
		Clock:  h.clock,
		Store:  store,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sync.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		err := testutil.RequireReceive(t, done, testTimeout, "Run did not return after cancel")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	})
	return h
}

// accept takes the host end of the next dial.
func (h *harness) accept() *fakeHost {
	h.t.Helper()
	conn := testutil.RequireReceive(h.t, h.dialer.inner.Incoming(), testTimeout, "waiting for a dial")
	return &fakeHost{t: h.t, conn: conn}
}

func (h *harness) waitFor(description string, condition func(Status) bool) Status {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	status, err := h.sync.WaitFor(ctx, condition)
	if err != nil {
		h.t.Fatalf("waiting for %s: %v (last status %+v)", description, err, status)
	}
	return status
}

func (h *harness) waitForRoom(key roomstate.RoomKey, want SyncState) RoomStatus {
	h.t.Helper()
	status := h.waitFor("room "+want.String(), func(status Status) bool {
		return status.Rooms[key].State == want
	})
	return status.Rooms[key]
}

func (h *harness) waitConnected() {
	h.t.Helper()
	h.waitFor("connection", func(status Status) bool { return status.Connection == Connected })
}

func (h *harness) room(key roomstate.RoomKey) Snapshot {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	snapshot, err := h.sync.Room(ctx, key)
	if err != nil {
		h.t.Fatalf("Room: %v", err)
	}
	return snapshot
}

// async runs fn on its own goroutine; used for calls that send on the
// pipe and therefore block until the fake host reads.
func async(fn func() error) <-chan error {
	result := make(chan error, 1)
	go func() { result <- fn() }()
	return result
}

func requireNoError(t *testing.T, result <-chan error, what string) {
	t.Helper()
	if err := testutil.RequireReceive(t, result, testTimeout, what); err != nil {
		t.Fatalf("%s: %v", what, err)
	}
}

// fakeHost plays the network host on the far end of a pipe.
type fakeHost struct {
	t    *testing.T
	conn transport.Conn
}

func (f *fakeHost) next() *hostproto.Request {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	frame, err := f.conn.Receive(ctx)
	if err != nil {
		f.t.Fatalf("host receive: %v", err)
	}
	request, err := hostproto.DecodeRequest(frame)
	if err != nil {
		f.t.Fatalf("host decode: %v", err)
	}
	return request
}

func (f *fakeHost) expect(kind hostproto.RequestKind, key roomstate.RoomKey) *hostproto.Request {
	f.t.Helper()
	request := f.next()
	if request.Kind != kind || request.Key != key {
		f.t.Fatalf("host received %s for %s, want %s for %s", request.Kind, request.Key, kind, key)
	}
	return request
}

func (f *fakeHost) reply(response *hostproto.Response) {
	f.t.Helper()
	frame, err := response.Encode()
	if err != nil {
		f.t.Fatalf("encode response: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := f.conn.Send(ctx, frame); err != nil {
		f.t.Fatalf("host send: %v", err)
	}
}

// bringUp answers the Put and Subscribe for key.
func (f *fakeHost) bringUp(key roomstate.RoomKey) *hostproto.Request {
	f.t.Helper()
	put := f.expect(hostproto.Put, key)
	f.reply(&hostproto.Response{RequestID: put.ID, Kind: hostproto.PutResponse, Key: key})
	subscribe := f.expect(hostproto.Subscribe, key)
	f.reply(&hostproto.Response{RequestID: subscribe.ID, Kind: hostproto.SubscribeResponse, Key: key, Accepted: true})
	return put
}

func (f *fakeHost) notifyDelta(key roomstate.RoomKey, delta *roomstate.StateDelta) {
	f.t.Helper()
	encoded, err := codec.Marshal(delta)
	if err != nil {
		f.t.Fatalf("encode delta: %v", err)
	}
	f.reply(&hostproto.Response{Kind: hostproto.UpdateNotification, Key: key, Delta: encoded})
}

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	key, err := identity.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	return key
}

func (h *harness) createRoom(owner ed25519.PrivateKey, name string) roomstate.RoomKey {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	key, err := h.sync.CreateRoom(ctx, owner, name, "alice")
	if err != nil {
		h.t.Fatalf("CreateRoom: %v", err)
	}
	return key
}

func decodeState(t *testing.T, payload []byte) *roomstate.RoomState {
	t.Helper()
	state, err := hostproto.DecodeState(payload)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	return state
}

func decodeDelta(t *testing.T, payload []byte) *roomstate.StateDelta {
	t.Helper()
	delta, err := hostproto.DecodeDelta(payload)
	if err != nil {
		t.Fatalf("DecodeDelta: %v", err)
	}
	return delta
}
