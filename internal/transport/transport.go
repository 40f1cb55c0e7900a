// Package transport carries named events over a duplex connection and
// correlates outbound emits with the inbound events that confirm them.
// The bot consumes only the Conn interface; the websocket implementation
// lives alongside it in wsconn.go.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for transport-level faults. A ping timeout is a kind
// of closed connection.
var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrConnectionClosed = errors.New("connection closed")
	ErrPingTimeout      = fmt.Errorf("%w: ping timeout", ErrConnectionClosed)
)

// Event is one named message with its undecoded payload. A server
// acknowledgement without an event name surfaces with an empty Name.
type Event struct {
	Name string
	Data json.RawMessage
}

// Matcher decides whether an inbound event confirms a pending emit.
type Matcher func(ev Event) bool

// Conn is a live event connection.
//
// Emit sends an event and, when match is non-nil, waits up to timeout
// for an inbound event satisfying it. A nil result with a nil error
// means no confirmation arrived in time. Matched events are also
// delivered through Receive, so state mutation driven by the same event
// is unaffected by correlation.
type Conn interface {
	Emit(ctx context.Context, name string, payload any, match Matcher, timeout time.Duration) (*Event, error)
	Receive(ctx context.Context) (Event, error)
	Close() error
}

// Dialer opens a Conn to a server URL.
type Dialer func(ctx context.Context, serverURL string) (Conn, error)
