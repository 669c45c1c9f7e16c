// Package link defines the capability the session consumes from the wireless
// transport: a typed inbound event stream, typed outbound messages and a
// chunked recording download.
package link

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned by every send when no link is established.
	// It distinguishes the absence of a link from a failure reported by the unit.
	ErrNotConnected = errors.New("link not connected")

	// ErrRejected is returned when the unit explicitly refuses a message.
	ErrRejected = errors.New("rejected by unit")
)

// State is the transport level connection state.
type State int

const (
	StateDown State = iota
	StateConnecting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "down"
	}
}

// ProgressFunc receives the number of bytes received so far and the expected total.
// The total is zero while unknown.
type ProgressFunc func(received, total int64)

// Link is the single connection to the unit.
// Implementations must be safe for concurrent use; the session still serializes
// all calls that reach the unit.
type Link interface {
	// Connect establishes the link. It blocks until the link is ready, fails,
	// or ctx is cancelled.
	Connect(ctx context.Context) error

	// Disconnect tears the link down. It is safe to call when not connected.
	// The teardown is not reported as a StateDown event.
	Disconnect(ctx context.Context) error

	// Events returns the inbound event stream. The channel stays open across
	// reconnects and is closed only when the link is disposed.
	Events() <-chan Event

	// Send delivers one message and waits for the unit to acknowledge it.
	Send(ctx context.Context, msg Message) error

	// Download fetches a named recording from the unit.
	Download(ctx context.Context, name string, progress ProgressFunc) ([]byte, error)
}
