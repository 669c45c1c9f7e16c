package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roman-kulish/unit-companion/internal/link"
	"github.com/roman-kulish/unit-companion/internal/phone"
)

// SendFunc delivers one message to the unit.
type SendFunc func(ctx context.Context, msg link.Message) error

// StatusEngine keeps the unit's view of the phone status fresh without
// flooding the link.
type StatusEngine struct {
	send     SendFunc
	provider phone.Provider
	logger   *slog.Logger

	// mu serializes diff, send and record of lastSent
	mu       sync.Mutex
	lastSent *phone.Status

	// suppress counts force refreshes in flight; the change observer stays
	// silent while it is non-zero
	suppress atomic.Int32
}

// NewStatusEngine creates a StatusEngine sending through send.
func NewStatusEngine(send SendFunc, provider phone.Provider, logger *slog.Logger) *StatusEngine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &StatusEngine{
		send:     send,
		provider: provider,
		logger:   logger.With(slog.String("component", "status")),
	}
}

// Push sends s when it differs from the last successfully sent status, or
// when nothing was sent yet. It reports whether a send happened.
//
// Unless includeSignal is set, the signal strength fields are neither compared
// nor taken from s: the payload carries the last sent values instead.
func (e *StatusEngine) Push(ctx context.Context, s phone.Status, includeSignal bool) (bool, error) {
	return e.push(ctx, s, false, includeSignal)
}

// OnChange is the change observer path. It does nothing while a force
// refresh is running.
func (e *StatusEngine) OnChange(ctx context.Context, s phone.Status) (bool, error) {
	if e.Suppressed() {
		e.logger.Debug("status change ignored during force refresh")
		return false, nil
	}
	return e.push(ctx, s, false, false)
}

// ForceRefresh sends the current status unconditionally, signal strength included.
func (e *StatusEngine) ForceRefresh(ctx context.Context) error {
	e.suppress.Add(1)
	defer e.suppress.Add(-1)

	_, err := e.push(ctx, e.provider.Current(), true, true)
	return err
}

// Suppressed reports whether a force refresh is in flight.
func (e *StatusEngine) Suppressed() bool {
	return e.suppress.Load() > 0
}

// LastSent returns the last successfully sent status.
func (e *StatusEngine) LastSent() (phone.Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastSent == nil {
		return phone.Status{}, false
	}
	return *e.lastSent, true
}

// Reset forgets the last sent status, so the next push always goes out.
func (e *StatusEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSent = nil
}

func (e *StatusEngine) push(ctx context.Context, s phone.Status, force, includeSignal bool) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !force && e.lastSent != nil && !s.DiffersFrom(*e.lastSent, includeSignal) {
		return false, nil
	}

	out := s
	if !includeSignal {
		var pinned phone.Status
		if e.lastSent != nil {
			pinned = *e.lastSent
		}
		out = s.WithSignalFrom(pinned)
	}

	if err := e.send(ctx, link.StatusUpdate{Status: out}); err != nil {
		e.logger.Warn(fmt.Sprintf("error pushing status: %s", err.Error()), slog.Bool("force", force))
		return false, fmt.Errorf("pushing status: %w", err)
	}

	e.lastSent = &out
	e.logger.Debug("status pushed",
		slog.Bool("force", force),
		slog.Bool("playing", out.MusicPlaying),
		slog.Int("battery", out.BatteryPercent))

	return true, nil
}
