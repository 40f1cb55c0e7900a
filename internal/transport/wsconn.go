package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	eventBuf   = 256
)

// waiter is one pending Emit correlation.
type waiter struct {
	match Matcher
	ch    chan Event
}

// WSConn is a websocket-backed Conn. Events are JSON frames of the form
// ["eventName", payload]. A single read pump feeds both the Receive
// stream and any registered emit waiters.
type WSConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	waitersMu sync.Mutex
	waiters   map[*waiter]struct{}

	events chan Event
	done   chan struct{}
	once   sync.Once
	err    error
}

// Dial opens a websocket Conn to the given server URL, converting
// http(s) schemes to ws(s).
func Dial(ctx context.Context, serverURL string) (Conn, error) {
	wsURL, err := toWebsocketURL(serverURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	log.Info().Str("url", wsURL).Msg("connecting")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, wsURL, err)
	}

	c := &WSConn{
		conn:    conn,
		waiters: make(map[*waiter]struct{}),
		events:  make(chan Event, eventBuf),
		done:    make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.readPump()
	go c.pingLoop()
	return c, nil
}

func toWebsocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// fail shuts the connection down exactly once, recording the cause.
func (c *WSConn) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
		c.conn.Close()
	})
}

func (c *WSConn) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.fail(fmt.Errorf("%w: %v", ErrPingTimeout, err))
			} else {
				c.fail(fmt.Errorf("%w: read: %v", ErrConnectionClosed, err))
			}
			return
		}
		ev, err := decodeFrame(data)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		// Fulfill every waiter the event matches before handing it to
		// the receive stream.
		c.waitersMu.Lock()
		for w := range c.waiters {
			if w.match(ev) {
				delete(c.waiters, w)
				w.ch <- ev
			}
		}
		c.waitersMu.Unlock()

		select {
		case c.events <- ev:
		default:
			log.Warn().Str("event", ev.Name).Msg("event buffer full, dropping event")
		}
	}
}

func (c *WSConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.fail(fmt.Errorf("%w: ping: %v", ErrConnectionClosed, err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func decodeFrame(data []byte) (Event, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}
	if len(parts) == 0 {
		return Event{}, fmt.Errorf("empty frame")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return Event{}, fmt.Errorf("decode event name: %w", err)
	}
	ev := Event{Name: name}
	if len(parts) > 1 {
		ev.Data = parts[1]
	}
	return ev, nil
}

func (c *WSConn) write(name string, payload any) error {
	frame, err := json.Marshal([]any{name, payload})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: write: %v", ErrConnectionClosed, err)
	}
	return nil
}

// Emit sends an event. With a non-nil match it waits up to timeout for
// a confirming inbound event; nil-and-nil means the wait timed out.
func (c *WSConn) Emit(ctx context.Context, name string, payload any, match Matcher, timeout time.Duration) (*Event, error) {
	if match == nil {
		return nil, c.write(name, payload)
	}

	w := &waiter{match: match, ch: make(chan Event, 1)}
	c.waitersMu.Lock()
	c.waiters[w] = struct{}{}
	c.waitersMu.Unlock()
	drop := func() {
		c.waitersMu.Lock()
		delete(c.waiters, w)
		c.waitersMu.Unlock()
	}

	if err := c.write(name, payload); err != nil {
		drop()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-w.ch:
		return &ev, nil
	case <-timer.C:
		drop()
		return nil, nil
	case <-ctx.Done():
		drop()
		return nil, ctx.Err()
	case <-c.done:
		drop()
		return nil, c.err
	}
}

// Receive returns the next inbound event, draining buffered events
// before reporting a closed connection.
func (c *WSConn) Receive(ctx context.Context) (Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	default:
	}
	select {
	case ev := <-c.events:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case <-c.done:
		return Event{}, c.err
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *WSConn) Close() error {
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.fail(fmt.Errorf("%w: closed by client", ErrConnectionClosed))
	return nil
}
