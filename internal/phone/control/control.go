package control

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roman-kulish/unit-companion/internal/link"
	"github.com/roman-kulish/unit-companion/internal/phone"
)

// Controller applies unit commands to the phone state held by a
// phone.Holder. Platform integrations observe the Holder to carry them out.
type Controller struct {
	holder *phone.Holder
	logger *slog.Logger
}

func New(holder *phone.Holder, options ...func(*Controller)) *Controller {
	c := &Controller{
		holder: holder,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func WithLogger(logger *slog.Logger) func(*Controller) {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Execute runs a media command. Play and pause change the playback state;
// track skips are left to the player, which reports the new track.
func (c *Controller) Execute(_ context.Context, action link.MediaAction) error {
	switch action {
	case link.MediaPlay:
		c.holder.Update(func(s *phone.Status) { s.MusicPlaying = true })
	case link.MediaPause:
		c.holder.Update(func(s *phone.Status) { s.MusicPlaying = false })
	case link.MediaNext, link.MediaPrevious:
	default:
		return fmt.Errorf("unknown media action '%s'", action)
	}

	c.logger.Info("media command", slog.String("action", string(action)))
	return nil
}

func (c *Controller) SetSyncEnabled(_ context.Context, enabled bool) error {
	c.holder.Update(func(s *phone.Status) { s.NotificationSyncEnabled = enabled })
	c.logger.Info("notification sync changed", slog.Bool("enabled", enabled))
	return nil
}

func (c *Controller) Dismiss(_ context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("notification id is required")
	}
	c.logger.Info("notification dismissed", slog.String("id", id))
	return nil
}
