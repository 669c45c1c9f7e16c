package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/unit-companion/internal/link"
	"github.com/roman-kulish/unit-companion/internal/trip"
)

// LocationTarget identifies the flow waiting for the unit's GPS fix.
type LocationTarget int

const (
	TargetNavigateHome LocationTarget = iota
	TargetRouteStart
	TargetRouteEnd
	TargetCenterMap
)

func (t LocationTarget) String() string {
	switch t {
	case TargetNavigateHome:
		return "navigate home"
	case TargetRouteStart:
		return "route start"
	case TargetRouteEnd:
		return "route end"
	case TargetCenterMap:
		return "center map"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// LocationResult is the outcome of a device location request.
type LocationResult struct {
	Target LocationTarget
	Point  trip.Point
	Err    error
}

// pendingLocation is the one outstanding location request. The most recent
// request owns the next LocationReported event.
type pendingLocation struct {
	target LocationTarget
	seq    uint64
	timer  *time.Timer
}

type locator struct {
	mu      sync.Mutex
	seq     uint64
	pending *pendingLocation
}

// arm registers a request for target, superseding any outstanding one, and
// starts its timeout. onTimeout runs only if the request is still pending.
func (l *locator) arm(target LocationTarget, timeout time.Duration, onTimeout func(seq uint64)) (uint64, *LocationTarget) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var superseded *LocationTarget
	if l.pending != nil {
		l.pending.timer.Stop()
		superseded = &l.pending.target
	}

	l.seq++
	seq := l.seq
	l.pending = &pendingLocation{
		target: target,
		seq:    seq,
		timer:  time.AfterFunc(timeout, func() { onTimeout(seq) }),
	}
	return seq, superseded
}

// expire clears the request seq if it is still pending.
func (l *locator) expire(seq uint64) (LocationTarget, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil || l.pending.seq != seq {
		return 0, false
	}
	target := l.pending.target
	l.pending = nil
	return target, true
}

// resolve hands the pending request to the caller, stopping its timer.
func (l *locator) resolve() (LocationTarget, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil {
		return 0, false
	}
	l.pending.timer.Stop()
	target := l.pending.target
	l.pending = nil
	return target, true
}

// abandon drops the pending request, if any.
func (l *locator) abandon() (LocationTarget, bool) {
	return l.resolve()
}

func (l *locator) waiting() (LocationTarget, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil {
		return 0, false
	}
	return l.pending.target, true
}

// LocationPending reports which flow, if any, waits for a GPS fix.
func (s *Session) LocationPending() (LocationTarget, bool) {
	return s.locator.waiting()
}

// RequestDeviceLocation asks the unit for its GPS fix on behalf of target.
// The result is delivered through SubscribeLocations. A request supersedes
// any outstanding one; if the unit does not answer within LocationTimeout the
// request fails with ErrTimeout and the unit is told so.
func (s *Session) RequestDeviceLocation(ctx context.Context, target LocationTarget) error {
	op := fmt.Sprintf("request location for %s", target)

	if !s.online() {
		s.fail(op, "No internet connection", nil)
		return opError(op, ErrLinkUnavailable, nil)
	}
	if !s.machine.canCommand() {
		return opError(op, ErrLinkUnavailable, link.ErrNotConnected)
	}

	seq, superseded := s.locator.arm(target, s.config.LocationTimeout, s.locationTimedOut)
	if superseded != nil {
		s.logger.Info("location request superseded", slog.String("target", superseded.String()))
	}

	if err := s.send(ctx, link.LocationRequest{}); err != nil {
		s.locator.expire(seq)
		return opError(op, kindOf(err), err)
	}

	s.logger.Debug("location requested", slog.String("target", target.String()))
	return nil
}

// NavigateHome requests the unit GPS fix; the fix is routed home, saved as
// a trip and transferred to the unit.
func (s *Session) NavigateHome(ctx context.Context) error {
	return s.RequestDeviceLocation(ctx, TargetNavigateHome)
}

func (s *Session) locationTimedOut(seq uint64) {
	target, ok := s.locator.expire(seq)
	if !ok {
		return // answered in the meantime
	}

	err := opError(fmt.Sprintf("request location for %s", target), ErrTimeout, errors.New("no GPS response"))
	s.locations.publish(LocationResult{Target: target, Err: err})
	s.fail(err.Op, "No GPS response from the unit", err)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.SendTimeout)
	defer cancel()

	s.sendNotice(ctx, link.LocationError{Message: "no GPS response"})
}

func (s *Session) handleLocation(ctx context.Context, e link.LocationReported) {
	target, ok := s.locator.resolve()
	if !ok {
		s.logger.Debug("ignoring unsolicited location", slog.Float64("lat", e.Lat), slog.Float64("lon", e.Lon))
		return
	}

	op := fmt.Sprintf("request location for %s", target)
	if e.NoFix() {
		err := opError(op, ErrInvalidData, errors.New("no GPS signal"))
		s.locations.publish(LocationResult{Target: target, Err: err})
		s.fail(op, "The unit has no GPS signal", err)
		return
	}

	point := trip.Point{Lat: e.Lat, Lon: e.Lon}
	s.locations.publish(LocationResult{Target: target, Point: point})

	if target == TargetNavigateHome {
		s.spawn(ctx, func(ctx context.Context) {
			if err := s.completeNavigateHome(ctx, point); err != nil {
				s.fail("navigate home", "Navigation home failed", err)
				s.sendNotice(ctx, link.LocationError{Message: err.Error()})
			}
		})
	}
}

// completeNavigateHome routes from fix to the home location and sends the
// resulting trip to the unit.
func (s *Session) completeNavigateHome(ctx context.Context, fix trip.Point) error {
	const op = "navigate home"

	points, err := s.route(ctx, fix, s.config.Home)
	if err != nil {
		return err
	}

	now := s.now()
	t, err := trip.New(fmt.Sprintf("Home %s", now.Format("15:04")), points, now)
	if err != nil {
		return opError(op, ErrInvalidData, err)
	}

	if err = s.deps.Storage.SaveTrip(ctx, t); err != nil {
		return opError(op, nil, fmt.Errorf("saving trip: %w", err))
	}

	result, err := s.SendTripAndTiles(ctx, t)
	if err != nil {
		return err
	}
	if result.Cancelled {
		return opError(op, nil, fmt.Errorf("route transfer cancelled after %d of %d tiles", result.Sent, result.Total))
	}

	s.logger.Info("route home sent",
		slog.String("trip", t.Name),
		slog.Int("tilesSent", result.Sent),
		slog.Int("tilesTotal", result.Total))

	return nil
}

// route calls the Router under a hard RouteTimeout deadline, even if the
// router ignores its context.
func (s *Session) route(ctx context.Context, from, to trip.Point) ([]trip.Point, error) {
	const op = "fetch route"

	ctx, cancel := context.WithTimeout(ctx, s.config.RouteTimeout)
	defer cancel()

	type result struct {
		points []trip.Point
		err    error
	}
	done := make(chan result, 1)

	go func() {
		points, err := s.deps.Router.Route(ctx, from, to)
		done <- result{points, err}
	}()

	select {
	case r := <-done:
		switch {
		case errors.Is(r.err, context.DeadlineExceeded):
			return nil, opError(op, ErrTimeout, r.err)
		case r.err != nil:
			return nil, opError(op, ErrRemoteRejected, r.err)
		case len(r.points) == 0:
			return nil, opError(op, ErrInvalidData, errors.New("empty route"))
		}
		return r.points, nil

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, opError(op, ErrTimeout, ctx.Err())
		}
		return nil, opError(op, nil, ctx.Err())
	}
}
