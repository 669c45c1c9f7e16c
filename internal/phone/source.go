package phone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// FileSource feeds a Holder from a JSON status file that the platform layer
// rewrites whenever the phone state changes. Fields the unit commands own,
// such as notification sync, are kept from the Holder.
type FileSource struct {
	path     string
	interval time.Duration
	holder   *Holder
	logger   *slog.Logger

	modTime time.Time
}

func NewFileSource(path string, interval time.Duration, holder *Holder, options ...func(*FileSource)) *FileSource {
	if interval <= 0 {
		interval = time.Second
	}

	s := &FileSource{
		path:     path,
		interval: interval,
		holder:   holder,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func WithLogger(logger *slog.Logger) func(*FileSource) {
	return func(s *FileSource) {
		s.logger = logger
	}
}

// Run polls the status file until ctx is cancelled.
func (s *FileSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Poll(); err != nil {
			s.logger.Warn(fmt.Sprintf("error reading phone status: %s", err.Error()), slog.String("path", s.path))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll reads the status file if it changed since the last read. A missing
// file is not an error.
func (s *FileSource) Poll() error {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.ModTime().Equal(s.modTime) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}

	var status Status
	if err = json.Unmarshal(data, &status); err != nil {
		return fmt.Errorf("decoding: %w", err)
	}

	s.modTime = info.ModTime()
	s.holder.Update(func(current *Status) {
		status.NotificationSyncEnabled = current.NotificationSyncEnabled
		*current = status
	})
	return nil
}
