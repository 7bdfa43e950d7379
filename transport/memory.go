// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
)

var (
	_ Conn   = (*pipeEnd)(nil)
	_ Dialer = (*MemoryDialer)(nil)
)

// pipeEnd is one side of an in-process connection. Both ends share a
// closed channel, so closing either side closes the pair.
type pipeEnd struct {
	in   chan []byte
	out  chan []byte
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected endpoints. Frames sent on one are
// received on the other in order. Sends block until the peer receives.
func Pipe() (Conn, Conn) {
	forward := make(chan []byte)
	backward := make(chan []byte)
	done := make(chan struct{})
	once := new(sync.Once)
	return &pipeEnd{in: backward, out: forward, done: done, once: once},
		&pipeEnd{in: forward, out: backward, done: done, once: once}
}

func (p *pipeEnd) Send(ctx context.Context, frame []byte) error {
	copied := append([]byte(nil), frame...)
	select {
	case p.out <- copied:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// MemoryDialer dials in-process pipes. Each Dial blocks until the host
// side is taken from Incoming, which lets tests hold a handshake open.
type MemoryDialer struct {
	incoming chan Conn
}

// NewMemoryDialer returns a MemoryDialer with no pending connections.
func NewMemoryDialer() *MemoryDialer {
	return &MemoryDialer{incoming: make(chan Conn)}
}

// Incoming delivers the host end of each dialed connection.
func (d *MemoryDialer) Incoming() <-chan Conn {
	return d.incoming
}

// Dial creates a pipe and waits for the host to accept its far end.
func (d *MemoryDialer) Dial(ctx context.Context, address string) (Conn, error) {
	client, host := Pipe()
	select {
	case d.incoming <- host:
		return client, nil
	case <-ctx.Done():
		client.Close()
		return nil, ctx.Err()
	}
}
