package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roman-kulish/unit-companion/internal/link/wslink"
	"github.com/roman-kulish/unit-companion/internal/overlay"
	"github.com/roman-kulish/unit-companion/internal/phone"
	"github.com/roman-kulish/unit-companion/internal/phone/control"
	"github.com/roman-kulish/unit-companion/internal/remote"
	"github.com/roman-kulish/unit-companion/internal/session"
	"github.com/roman-kulish/unit-companion/internal/storage"
	"github.com/roman-kulish/unit-companion/internal/trip"
)

const (
	storageFile     = "companion.sqlite"
	reconnectDelay  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	if stats, err := store.Stats(ctx); err == nil {
		logger.Info("storage opened", slog.String("stats", stats.String()))
	}

	sessionConfig, err := config.SessionConfig()
	if err != nil {
		return fmt.Errorf("failed to create session config: %w", err)
	}

	theme, err := overlay.ParseTheme(config.Radar.Theme)
	if err != nil {
		return fmt.Errorf("failed to parse radar theme: %w", err)
	}
	radarOverlay, err := overlay.New(theme, overlay.WithLogger(logger.With(slog.String("component", "overlay"))))
	if err != nil {
		return fmt.Errorf("failed to create radar overlay: %w", err)
	}

	holder := phone.NewHolder(phone.Status{})
	client := remote.NewClient(time.Duration(config.Sources.Timeout), remote.WithLogger(logger.With(slog.String("component", "remote"))))

	unit := wslink.New(config.Link.URL,
		wslink.WithLogger(logger.With(slog.String("component", "link"))),
		wslink.WithDialTimeout(time.Duration(config.Link.DialTimeout)))
	defer unit.Close()

	deps := session.Dependencies{
		Phone:         holder,
		Connectivity:  remote.NewProbe(client, config.Sources.ProbeURL, 0),
		Weather:       remote.NewWeatherClient(client, config.Sources.WeatherURL),
		Radar:         remote.NewRadarClient(client, config.Sources.RadarURL),
		Overlay:       radarOverlay,
		Router:        remote.NewRoutingClient(client, config.Sources.RoutingURL, config.Sources.RoutingProfile),
		Tiles:         remote.NewTileClient(client, config.Sources.TileURL),
		Storage:       store,
		Media:         control.New(holder, control.WithLogger(logger.With(slog.String("component", "phone")))),
		Notifications: control.New(holder, control.WithLogger(logger.With(slog.String("component", "phone")))),
		Parser:        trip.RecordingParser{},
		Merger:        trip.MetadataMerger{},
	}

	sess := session.New(unit, deps, sessionConfig, session.WithLogger(logger))

	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if config.Phone.StatusFile != "" {
		source := phone.NewFileSource(config.Phone.StatusFile, time.Duration(config.Phone.PollInterval), holder,
			phone.WithLogger(logger.With(slog.String("component", "phone"))))
		start(func() { _ = source.Run(ctx) })
	}

	start(func() {
		if err := sess.Run(ctx); err != nil {
			logger.Error(fmt.Sprintf("session loop failed: %s", err.Error()))
		}
	})
	start(func() { logNotices(ctx, sess, logger) })
	start(func() { logLocations(ctx, sess, logger) })
	start(func() { maintainConnection(ctx, sess, reconnectDelay, logger) })

	if config.Session.PeriodicStatus {
		sess.EnablePeriodicStatusUpdates(ctx)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	sess.DisablePeriodicStatusUpdates()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err = sess.Disconnect(shutdownCtx); err != nil {
		logger.Warn(fmt.Sprintf("error disconnecting: %s", err.Error()))
	}

	wg.Wait()
	return nil
}

// maintainConnection connects to the unit right away and reconnects delay
// after the link drops or an attempt fails.
func maintainConnection(ctx context.Context, sess *session.Session, delay time.Duration, logger *slog.Logger) {
	states := sess.SubscribeState(ctx)
	first := true

	connect := func() {
		if err := sess.Connect(ctx); err != nil {
			logger.Warn(fmt.Sprintf("error connecting to the unit: %s", err.Error()))
			return
		}
		if err := sess.RequestLists(ctx); err != nil {
			logger.Warn(fmt.Sprintf("error requesting lists: %s", err.Error()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case state, ok := <-states:
			if !ok {
				return
			}

			logger.Info("session state", slog.String("phase", state.Phase.String()), slog.String("error", state.Err))
			if state.Transfer != nil {
				logger.Debug("transfer progress",
					slog.String("trip", state.Transfer.FileID),
					slog.Int("percentage", state.Transfer.Percentage))
			}

			if state.Phase != session.PhaseIdle && state.Phase != session.PhaseError {
				continue
			}

			if !first {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}
			first = false
			connect()
		}
	}
}

func logNotices(ctx context.Context, sess *session.Session, logger *slog.Logger) {
	for notice := range sess.SubscribeNotices(ctx) {
		attrs := []any{slog.String("op", notice.Op), slog.Time("time", notice.Time)}
		if notice.Kind == session.NoticeError {
			logger.Warn(notice.Message, attrs...)
		} else {
			logger.Info(notice.Message, attrs...)
		}
	}
}

func logLocations(ctx context.Context, sess *session.Session, logger *slog.Logger) {
	for result := range sess.SubscribeLocations(ctx) {
		if result.Err != nil {
			logger.Warn(fmt.Sprintf("location request failed: %s", result.Err.Error()), slog.String("target", result.Target.String()))
			continue
		}
		logger.Info("unit location",
			slog.String("target", result.Target.String()),
			slog.Float64("lat", result.Point.Lat),
			slog.Float64("lon", result.Point.Lon))
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = defaultDataDirectory
	}

	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	return storage.NewSqliteStore(filepath.Join(dir, storageFile)), nil
}
