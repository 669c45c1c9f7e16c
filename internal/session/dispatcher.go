package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/unit-companion/internal/link"
)

// dispatch routes one inbound event. State and bookkeeping events are
// handled inline; requests run as their own tasks.
func (s *Session) dispatch(ctx context.Context, ev link.Event) {
	switch e := ev.(type) {
	case link.StateChanged:
		s.handleLinkState(e)

	case link.LocationReported:
		s.handleLocation(ctx, e)

	case link.TripsReported:
		s.machine.setTrips(e.Names)
		s.logger.Debug("unit trips reported", slog.Int("count", len(e.Names)))

	case link.RecordingsReported:
		s.machine.setRecordings(e.Recordings)
		s.logger.Debug("unit recordings reported", slog.Int("count", len(e.Recordings)))

	case link.WeatherRequested:
		s.spawn(ctx, func(ctx context.Context) { s.handleWeather(ctx, e) })

	case link.RadarRequested:
		s.spawn(ctx, func(ctx context.Context) { s.handleRadar(ctx, e) })

	case link.MediaRequested:
		s.spawn(ctx, func(ctx context.Context) { s.handleMedia(ctx, e) })

	case link.NotificationSyncRequested:
		s.spawn(ctx, func(ctx context.Context) { s.handleNotificationSync(ctx, e) })

	case link.NotificationDismissed:
		s.spawn(ctx, func(ctx context.Context) { s.handleNotificationDismissed(ctx, e) })

	case link.StatusRequested:
		s.spawn(ctx, func(ctx context.Context) {
			if err := s.status.ForceRefresh(ctx); err != nil {
				s.logger.Warn(fmt.Sprintf("error answering status request: %s", err.Error()))
			}
		})

	default:
		s.logger.Warn(fmt.Sprintf("unhandled event '%s'", ev.Type()))
	}
}

func (s *Session) handleLinkState(e link.StateChanged) {
	switch e.State {
	case link.StateDown:
		if e.Err != nil {
			s.logger.Warn(fmt.Sprintf("link lost: %s", e.Err.Error()))
			s.notify(NoticeError, "link", "Connection to the unit lost")
		}
		s.linkDown()

	default:
		// connect attempts drive the other transitions
		s.logger.Debug("link state", slog.String("state", e.State.String()))
	}
}

func (s *Session) handleWeather(ctx context.Context, e link.WeatherRequested) {
	const op = "weather"

	if !s.online() {
		s.sendNotice(ctx, link.WeatherError{Message: "no internet connection"})
		s.fail(op, "No internet connection", nil)
		return
	}

	report, err := s.deps.Weather.Weather(ctx, e.Lat, e.Lon)
	if err != nil {
		s.sendNotice(ctx, link.WeatherError{Message: "weather unavailable"})
		s.fail(op, "Weather unavailable", opError(op, ErrRemoteRejected, err))
		return
	}

	attempts, err := s.sendWithRetry(ctx, report)
	if err != nil {
		s.sendNotice(ctx, link.WeatherError{Message: "failed to deliver weather"})
		s.fail(op, "Failed to send weather to the unit", err)
		return
	}

	s.logger.Info("weather sent",
		slog.Group("location", slog.Float64("lat", e.Lat), slog.Float64("lon", e.Lon)),
		slog.Int("attempts", attempts))
}

func (s *Session) handleRadar(ctx context.Context, e link.RadarRequested) {
	const op = "radar"

	cfg := s.config.Radar
	total := cfg.PastSteps + cfg.FutureSteps + 1

	abort := func(message string, err error) {
		s.sendNotice(ctx, link.RadarError{StepMinutes: cfg.StepMinutes, TotalFrames: total, Message: message})
		s.fail(op, message, err)
	}

	if !s.online() {
		abort("No internet connection", nil)
		return
	}

	current, err := s.deps.Radar.Frame(ctx, RadarQuery{Lat: e.Lat, Lon: e.Lon, Zoom: e.Zoom})
	if err != nil {
		abort("Radar unavailable", opError(op, ErrRemoteRejected, err))
		return
	}

	base := current.Timestamp
	if base.IsZero() {
		base = s.now()
	}
	seq := NewSequence(cfg, base)

	// the unit needs the current frame as its baseline before anything else
	frame, err := s.radarFrame(seq.Frame(0), total, current.Data)
	if err != nil {
		abort("Radar frame unusable", err)
		return
	}
	if _, err = s.sendWithRetry(ctx, frame); err != nil {
		abort("Failed to send radar to the unit", err)
		return
	}

	sent := 1
	for _, offset := range SequentialOffsets(cfg.PastSteps, cfg.FutureSteps)[1:] {
		if !s.machine.canCommand() {
			s.logger.Warn("radar sequence interrupted, link not connected")
			return
		}

		spec := seq.Frame(offset)
		q := RadarQuery{Lat: e.Lat, Lon: e.Lon, Zoom: e.Zoom, Time: spec.Time, Nowcast: spec.Nowcast}

		img, err := s.deps.Radar.Frame(ctx, q)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("skipping radar frame: %s", err.Error()), slog.Int("offset", offset))
			continue
		}

		frame, err := s.radarFrame(spec, total, img.Data)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("skipping radar frame: %s", err.Error()), slog.Int("offset", offset))
			continue
		}

		if err = s.send(ctx, frame); err != nil {
			s.logger.Warn(fmt.Sprintf("error sending radar frame: %s", err.Error()), slog.Int("offset", offset))
			continue
		}
		sent++
	}

	s.logger.Info("radar sent", slog.Int("frames", sent), slog.Int("total", total))
}

// radarFrame overlays the image and builds the message for spec.
func (s *Session) radarFrame(spec FrameSpec, total int, data []byte) (link.RadarFrame, error) {
	image := data
	if s.deps.Overlay != nil {
		label := fmt.Sprintf("%02d:%02d", spec.LocalMinutes/60, spec.LocalMinutes%60)

		var err error
		if image, err = s.deps.Overlay.Process(data, label); err != nil {
			return link.RadarFrame{}, opError("radar overlay", ErrInvalidData, err)
		}
	}

	frame := link.RadarFrame{
		Offset:       spec.Offset,
		StepMinutes:  s.config.Radar.StepMinutes,
		TotalFrames:  total,
		Image:        image,
		LocalMinutes: spec.LocalMinutes,
	}
	if spec.Nowcast {
		step := spec.NowcastStep
		frame.NowcastStep = &step
	}
	return frame, nil
}

func (s *Session) handleMedia(ctx context.Context, e link.MediaRequested) {
	if err := s.deps.Media.Execute(ctx, e.Action); err != nil {
		s.fail("media", fmt.Sprintf("Media command '%s' failed", e.Action), err)
		return
	}
	s.settleAndRefresh(ctx)
}

func (s *Session) handleNotificationSync(ctx context.Context, e link.NotificationSyncRequested) {
	if err := s.deps.Notifications.SetSyncEnabled(ctx, e.Enabled); err != nil {
		s.fail("notification sync", "Failed to toggle notification sync", err)
		return
	}
	s.settleAndRefresh(ctx)
}

func (s *Session) handleNotificationDismissed(ctx context.Context, e link.NotificationDismissed) {
	if err := s.deps.Notifications.Dismiss(ctx, e.ID); err != nil {
		s.logger.Warn(fmt.Sprintf("error dismissing notification: %s", err.Error()), slog.String("id", e.ID))
	}
}

// settleAndRefresh waits for a command to take effect on the phone, then
// pushes the status so the unit reflects it.
func (s *Session) settleAndRefresh(ctx context.Context) {
	if err := sleep(ctx, s.config.SettleDelay); err != nil {
		return
	}
	if err := s.status.ForceRefresh(ctx); err != nil {
		s.logger.Warn(fmt.Sprintf("error refreshing status: %s", err.Error()))
	}
}
