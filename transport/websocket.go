// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/river/lib/clock"
)

var (
	_ Conn   = (*webSocketConn)(nil)
	_ Dialer = (*WebSocketDialer)(nil)
)

// WebSocket defaults.
const (
	DefaultReadLimit    = 16 << 20
	DefaultPingPeriod   = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// WebSocketOptions tune a websocket connection. Zero values select the
// defaults above.
type WebSocketOptions struct {
	// ReadLimit caps the size of a received frame.
	ReadLimit int64

	// PingPeriod is the keepalive interval. The peer must answer a
	// ping (or send anything) within two periods or the connection
	// is considered dead.
	PingPeriod time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

func (o WebSocketOptions) withDefaults() WebSocketOptions {
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultReadLimit
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = DefaultPingPeriod
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// WebSocketDialer dials a host over websocket.
type WebSocketDialer struct {
	Options WebSocketOptions

	// Header is sent with the upgrade request.
	Header http.Header
}

// Dial performs the websocket handshake with the host at address (a
// ws:// or wss:// URL). The handshake is bounded by ctx.
func (d *WebSocketDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, response, err := dialer.DialContext(ctx, address, d.Header)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("transport: dialing %s: %w (HTTP %d)", address, err, response.StatusCode)
		}
		return nil, fmt.Errorf("transport: dialing %s: %w", address, err)
	}
	return newWebSocketConn(conn, d.Options), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Accept upgrades an HTTP request to a websocket Conn.
func Accept(w http.ResponseWriter, r *http.Request, options WebSocketOptions) (Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: upgrading %s: %w", r.RemoteAddr, err)
	}
	return newWebSocketConn(conn, options), nil
}

type webSocketConn struct {
	conn    *websocket.Conn
	options WebSocketOptions

	writeMu sync.Mutex
	frames  chan []byte
	done    chan struct{}

	errMu   sync.Mutex
	readErr error

	closeOnce sync.Once
}

func newWebSocketConn(conn *websocket.Conn, options WebSocketOptions) *webSocketConn {
	options = options.withDefaults()
	c := &webSocketConn{
		conn:    conn,
		options: options,
		frames:  make(chan []byte, 16),
		done:    make(chan struct{}),
	}
	conn.SetReadLimit(options.ReadLimit)
	c.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})
	go c.readPump()
	go c.pingPump()
	return c
}

func (c *webSocketConn) extendReadDeadline() {
	// Socket deadlines are enforced by the kernel against wall time.
	c.conn.SetReadDeadline(time.Now().Add(2 * c.options.PingPeriod)) //nolint:realclock kernel deadline
}

// readPump owns all reads on the socket. It exits on the first error,
// which Receive then reports.
func (c *webSocketConn) readPump() {
	defer c.Close()
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = ErrClosed
			}
			c.errMu.Lock()
			c.readErr = err
			c.errMu.Unlock()
			return
		}
		c.extendReadDeadline()
		if messageType != websocket.BinaryMessage {
			c.options.Logger.Debug("dropping non-binary websocket frame", "type", messageType)
			continue
		}
		select {
		case c.frames <- data:
		case <-c.done:
			return
		}
	}
}

func (c *webSocketConn) pingPump() {
	ticker := c.options.Clock.NewTicker(c.options.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.options.WriteTimeout) //nolint:realclock kernel deadline
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, deadline)
			c.writeMu.Unlock()
			if err != nil {
				c.options.Logger.Debug("websocket ping failed", "error", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *webSocketConn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(c.options.WriteTimeout) //nolint:realclock kernel deadline
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("transport: setting write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("transport: writing frame: %w", err)
	}
	return nil
}

func (c *webSocketConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-c.done:
		// Frames queued before the failure are still delivered.
		select {
		case frame := <-c.frames:
			return frame, nil
		default:
		}
		c.errMu.Lock()
		readErr := c.readErr
		c.errMu.Unlock()
		if readErr != nil && !errors.Is(readErr, ErrClosed) {
			return nil, fmt.Errorf("transport: reading frame: %w", readErr)
		}
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *webSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second) //nolint:realclock kernel deadline
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
