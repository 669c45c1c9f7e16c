// Package session is the orchestration core between the phone and the unit.
//
// A Session owns the connection state machine, pushes the phone status,
// answers requests initiated by the unit and runs bulk transfers. All traffic
// to the unit goes through a single send lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/unit-companion/internal/link"
	"github.com/roman-kulish/unit-companion/internal/trip"
)

const (
	defaultStatusInterval  = 30 * time.Second
	defaultSendAttempts    = 3
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultSendTimeout     = 10 * time.Second
	defaultLocationTimeout = 20 * time.Second
	defaultRouteTimeout    = 30 * time.Second
	defaultSettleDelay     = 500 * time.Millisecond
	defaultTileWorkers     = 4
	defaultStepMinutes     = 10
	noticesBufferSize      = 16
)

var defaultTileZooms = []int{10, 12, 14}

// Config holds the session timing and sequencing parameters.
// Zero values are replaced with defaults by New.
type Config struct {
	StatusInterval  time.Duration
	SendAttempts    int
	RetryBackoff    time.Duration
	SendTimeout     time.Duration
	LocationTimeout time.Duration
	RouteTimeout    time.Duration
	SettleDelay     time.Duration
	TileZooms       []int
	TileWorkers     int
	Home            trip.Point
	Radar           RadarConfig
}

func (c Config) withDefaults() Config {
	if c.StatusInterval <= 0 {
		c.StatusInterval = defaultStatusInterval
	}
	if c.SendAttempts <= 0 {
		c.SendAttempts = defaultSendAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	if c.LocationTimeout <= 0 {
		c.LocationTimeout = defaultLocationTimeout
	}
	if c.RouteTimeout <= 0 {
		c.RouteTimeout = defaultRouteTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if len(c.TileZooms) == 0 {
		c.TileZooms = defaultTileZooms
	}
	if c.TileWorkers <= 0 {
		c.TileWorkers = defaultTileWorkers
	}
	if c.Radar.StepMinutes <= 0 {
		c.Radar.StepMinutes = defaultStepMinutes
	}
	return c
}

// WithLogger sets the logger for the session
func WithLogger(logger *slog.Logger) func(*Session) {
	return func(s *Session) {
		s.logger = logger.With(slog.String("component", "session"))
	}
}

// WithClock replaces the wall clock used for trip names and radar frames
func WithClock(now func() time.Time) func(*Session) {
	return func(s *Session) {
		s.now = now
	}
}

// connectAttempt is one in-flight link.Connect call.
type connectAttempt struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// job is a cancellable transfer or download. The cancel cause tells a link
// loss apart from a cancel request.
type job struct {
	id     string
	name   string
	cancel context.CancelCauseFunc
}

// Session coordinates the phone with the unit over a single link.
type Session struct {
	link   link.Link
	deps   Dependencies
	config Config
	logger *slog.Logger
	now    func() time.Time

	machine *machine
	status  *StatusEngine
	locator *locator

	notices   *watch[Notice]
	locations *watch[LocationResult]

	// sendSem is the single send lock; a channel so waiting honours ctx
	sendSem chan struct{}

	// connMu serializes Connect and Disconnect; attemptMu guards attempt
	connMu    sync.Mutex
	attemptMu sync.Mutex
	attempt   *connectAttempt

	jobsMu    sync.Mutex
	transfer  *job
	download  *job
	completed map[string]*trip.Trip

	periodicMu     sync.Mutex
	periodicCancel context.CancelFunc
	periodicDone   chan struct{}

	isRunning atomic.Bool
	wg        sync.WaitGroup
}

// New creates a Session on top of l.
func New(l link.Link, deps Dependencies, config Config, options ...func(*Session)) *Session {
	s := Session{
		link:      l,
		deps:      deps,
		config:    config.withDefaults(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		machine:   newMachine(),
		notices:   newWatch[Notice](noticesBufferSize),
		locations: newWatch[LocationResult](noticesBufferSize),
		sendSem:   make(chan struct{}, 1),
		completed: make(map[string]*trip.Trip),
	}

	for _, option := range options {
		option(&s)
	}

	s.status = NewStatusEngine(s.send, deps.Phone, s.logger)
	s.locator = &locator{}

	return &s
}

// State returns the current session state.
func (s *Session) State() State {
	return s.machine.snapshot()
}

// SubscribeState streams state snapshots, starting with the current one.
// Slow subscribers only see the latest state.
func (s *Session) SubscribeState(ctx context.Context) <-chan State {
	return s.machine.subscribe(ctx)
}

// SubscribeNotices streams user visible notices.
func (s *Session) SubscribeNotices(ctx context.Context) <-chan Notice {
	return s.notices.subscribe(ctx)
}

// SubscribeLocations streams the outcome of device location requests.
func (s *Session) SubscribeLocations(ctx context.Context) <-chan LocationResult {
	return s.locations.subscribe(ctx)
}

// Status returns the device status push engine.
func (s *Session) Status() *StatusEngine {
	return s.status
}

// KnownTrips returns the trip names last reported by the unit.
func (s *Session) KnownTrips() []string {
	return s.machine.knownTrips()
}

// ActiveTrip returns the name of the trip running on the unit, if any.
func (s *Session) ActiveTrip() string {
	return s.machine.active()
}

// Connect establishes the link.
//
// It is a no-op while connected or downloading and fails with ErrBusy during
// a transfer. A Connect issued while another attempt is still handshaking
// stops that attempt, tears the link down and starts over.
func (s *Session) Connect(ctx context.Context) error {
	s.connMu.Lock()

	switch s.machine.current() {
	case PhaseConnected, PhaseDownloading:
		s.connMu.Unlock()
		return nil
	case PhaseTransferring:
		s.connMu.Unlock()
		return opError("connect", ErrBusy, nil)
	}

	if prev := s.takeAttempt(); prev != nil {
		s.logger.Warn("connection attempt stuck, restarting")

		prev.cancel()
		<-prev.done

		if err := s.link.Disconnect(ctx); err != nil {
			s.logger.Warn(fmt.Sprintf("error tearing down stuck attempt: %s", err.Error()))
		}
	}

	actx, cancel := context.WithCancel(ctx)
	a := &connectAttempt{cancel: cancel, done: make(chan struct{})}

	s.attemptMu.Lock()
	s.attempt = a
	s.attemptMu.Unlock()

	s.machine.set(PhaseConnecting)

	go s.runAttempt(actx, a)

	s.connMu.Unlock()

	<-a.done
	return a.err
}

func (s *Session) runAttempt(ctx context.Context, a *connectAttempt) {
	defer close(a.done)
	defer a.cancel()

	err := s.link.Connect(ctx)

	// the outcome of a detached attempt is discarded
	s.attemptMu.Lock()
	current := s.attempt == a
	if current {
		s.attempt = nil
		if err != nil {
			s.machine.fail(fmt.Sprintf("connection failed: %s", err.Error()))
		} else {
			s.machine.set(PhaseConnected)
		}
	}
	s.attemptMu.Unlock()

	switch {
	case !current:
		a.err = opError("connect", nil, fmt.Errorf("attempt superseded: %w", context.Canceled))

	case err != nil:
		a.err = opError("connect", ErrLinkUnavailable, err)
		s.logger.Error(a.err.Error())
		s.notify(NoticeError, "connect", "Connection to the unit failed")

	default:
		s.logger.Info("connected to unit")
		s.afterConnect()
	}
}

// takeAttempt detaches the attempt in flight.
func (s *Session) takeAttempt() *connectAttempt {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()

	a := s.attempt
	s.attempt = nil
	return a
}

// Disconnect tears the link down and always leaves the session idle.
// It is safe to call in any state.
func (s *Session) Disconnect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if prev := s.takeAttempt(); prev != nil {
		prev.cancel()
		<-prev.done
	}

	s.cancelJobs(ErrLinkUnavailable)

	err := s.link.Disconnect(ctx)
	s.linkDown()

	if err != nil {
		s.logger.Warn(fmt.Sprintf("error disconnecting: %s", err.Error()))
		return fmt.Errorf("disconnecting: %w", err)
	}

	s.logger.Info("disconnected from unit")
	return nil
}

// linkDown resets the session as if freshly launched. The phase is reset
// before jobs are cancelled, so a job starting concurrently either fails to
// begin or is registered in time to be cancelled.
func (s *Session) linkDown() {
	s.machine.reset()
	s.cancelJobs(ErrLinkUnavailable)
	s.status.Reset()

	if target, ok := s.locator.abandon(); ok {
		s.locations.publish(LocationResult{
			Target: target,
			Err:    opError("request device location", ErrLinkUnavailable, nil),
		})
	}
}

func (s *Session) afterConnect() {
	s.periodicMu.Lock()
	enabled := s.periodicCancel != nil
	s.periodicMu.Unlock()

	if !enabled || s.deps.Phone == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.SendTimeout)
	defer cancel()

	if _, err := s.status.Push(ctx, s.deps.Phone.Current(), true); err != nil {
		s.logger.Warn(fmt.Sprintf("error pushing initial status: %s", err.Error()))
	}
}

// Run is the single receive loop dispatching link events. It returns when
// ctx is done or the event stream is closed, after all handlers finished.
func (s *Session) Run(ctx context.Context) error {
	if !s.isRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("session is already running")
	}
	defer s.isRunning.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	events := s.link.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				s.logger.Info("link event stream closed")
				return nil
			}
			s.dispatch(ctx, ev)
		}
	}
}

// spawn runs fn as a handler task tracked by Run.
func (s *Session) spawn(ctx context.Context, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

// send delivers msg through the single send lock.
func (s *Session) send(ctx context.Context, msg link.Message) error {
	if !s.machine.canCommand() {
		return link.ErrNotConnected
	}

	select {
	case s.sendSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sendSem }()

	ctx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
	defer cancel()

	return s.link.Send(ctx, msg)
}

// sendWithRetry makes up to SendAttempts attempts with a fixed backoff.
// It gives up early once the link no longer accepts commands.
func (s *Session) sendWithRetry(ctx context.Context, msg link.Message) (int, error) {
	var err error
	for attempt := 1; attempt <= s.config.SendAttempts; attempt++ {
		if !s.machine.canCommand() {
			return attempt - 1, link.ErrNotConnected
		}

		if err = s.send(ctx, msg); err == nil {
			return attempt, nil
		}

		s.logger.Warn(fmt.Sprintf("error sending %s: %s", msg.Type(), err.Error()),
			slog.Int("attempt", attempt))

		if attempt < s.config.SendAttempts {
			if serr := sleep(ctx, s.config.RetryBackoff); serr != nil {
				return attempt, serr
			}
		}
	}
	return s.config.SendAttempts, err
}

// sendNotice delivers an error message to the unit on a best effort basis.
func (s *Session) sendNotice(ctx context.Context, msg link.Message) {
	if err := s.send(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Warn(fmt.Sprintf("error sending %s: %s", msg.Type(), err.Error()))
	}
}

func (s *Session) notify(kind NoticeKind, op, message string) {
	s.notices.publish(Notice{Kind: kind, Op: op, Message: message, Time: s.now()})
}

// fail logs err and surfaces it as an error notice.
func (s *Session) fail(op, message string, err error) {
	if err != nil {
		s.logger.Error(fmt.Sprintf("%s: %s", op, err.Error()))
	} else {
		s.logger.Error(fmt.Sprintf("%s: %s", op, message))
	}
	s.notify(NoticeError, op, message)
}

func (s *Session) online() bool {
	return s.deps.Connectivity == nil || s.deps.Connectivity.Online()
}

// StartTrip starts navigation of a trip stored on the unit.
func (s *Session) StartTrip(ctx context.Context, name string) error {
	if err := s.send(ctx, link.TripStart{Name: name}); err != nil {
		return opError("start trip", kindOf(err), err)
	}
	s.machine.setActiveTrip(name)
	return nil
}

// StopTrip stops the trip running on the unit.
func (s *Session) StopTrip(ctx context.Context) error {
	if err := s.send(ctx, link.TripStop{}); err != nil {
		return opError("stop trip", kindOf(err), err)
	}
	s.machine.setActiveTrip("")
	return nil
}

// RequestLists asks the unit to report its trips and recordings.
func (s *Session) RequestLists(ctx context.Context) error {
	if err := s.send(ctx, link.ListRequest{}); err != nil {
		return opError("request lists", kindOf(err), err)
	}
	return nil
}

// RefreshStatus forces an immediate status push.
func (s *Session) RefreshStatus(ctx context.Context) error {
	if err := s.status.ForceRefresh(ctx); err != nil {
		return opError("refresh status", kindOf(err), err)
	}
	return nil
}

// EnablePeriodicStatusUpdates starts the status change observer. Changes are
// pushed as they happen and the status is re-checked every StatusInterval,
// signal strength included. The observer stops with ctx or
// DisablePeriodicStatusUpdates.
func (s *Session) EnablePeriodicStatusUpdates(ctx context.Context) {
	s.periodicMu.Lock()
	defer s.periodicMu.Unlock()

	if s.periodicCancel != nil || s.deps.Phone == nil {
		return
	}

	ctx, s.periodicCancel = context.WithCancel(ctx)
	s.periodicDone = make(chan struct{})

	go s.observeStatus(ctx, s.periodicDone)
}

// DisablePeriodicStatusUpdates stops the status change observer.
func (s *Session) DisablePeriodicStatusUpdates() {
	s.periodicMu.Lock()
	cancel, done := s.periodicCancel, s.periodicDone
	s.periodicCancel, s.periodicDone = nil, nil
	s.periodicMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Session) observeStatus(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()

	changes := s.deps.Phone.Changes()
	for {
		select {
		case <-ctx.Done():
			return

		case st := <-changes:
			if !s.machine.canCommand() {
				continue
			}
			if _, err := s.status.OnChange(ctx, st); err != nil {
				s.logger.Debug(err.Error())
			}

		case <-ticker.C:
			if !s.machine.canCommand() {
				continue
			}
			if _, err := s.status.Push(ctx, s.deps.Phone.Current(), true); err != nil {
				s.logger.Debug(err.Error())
			}
		}
	}
}

// kindOf maps a failure to the error taxonomy.
func kindOf(err error) error {
	switch {
	case errors.Is(err, link.ErrNotConnected):
		return ErrLinkUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, link.ErrRejected):
		return ErrRemoteRejected
	default:
		return nil
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
