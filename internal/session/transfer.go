package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/unit-companion/internal/link"
	"github.com/roman-kulish/unit-companion/internal/storage"
	"github.com/roman-kulish/unit-companion/internal/trip"
)

// TransferResult summarizes a trip and tile upload.
type TransferResult struct {
	JobID     string
	Sent      int
	Failed    int
	Total     int
	Cancelled bool
}

// TileBatchResult summarizes a tile download batch. Failures do not stop the
// batch; FirstError keeps the first one encountered.
type TileBatchResult struct {
	Downloaded int
	Failed     int
	Total      int
	FirstError string
}

// SendTripAndTiles uploads t followed by the map tiles covering it, one tile
// at a time. The session stays in PhaseTransferring until the upload ends.
//
// A trip the unit already reports is refused with ErrAlreadyInProgress.
// CancelTransfer stops the upload before the next tile; a cancelled upload
// returns the partial result and no error. An upload cut short by a link loss
// returns the partial result and ErrLinkUnavailable.
func (s *Session) SendTripAndTiles(ctx context.Context, t *trip.Trip) (TransferResult, error) {
	op := fmt.Sprintf("send trip '%s'", t.Name)

	if s.machine.hasTrip(t.Name) {
		return TransferResult{}, opError(op, ErrAlreadyInProgress, errors.New("trip already on the unit"))
	}

	coords, err := trip.TilesForBounds(t.Bounds, s.config.TileZooms...)
	if err != nil {
		return TransferResult{}, opError(op, ErrInvalidData, err)
	}

	ctx, j, err := s.startJob(ctx, &s.transfer, t.Name, func() error {
		return s.machine.beginTransfer(t.Name, len(coords))
	})
	if err != nil {
		return TransferResult{}, opError(op, err, nil)
	}
	defer s.machine.finishJob(PhaseTransferring)
	defer s.endJob(&s.transfer, j)

	logger := s.logger.With(slog.String("job", j.id), slog.String("trip", t.Name))
	logger.Info("transfer started", slog.Int("tiles", len(coords)))

	result := TransferResult{JobID: j.id, Total: len(coords)}

	stopped := func() (TransferResult, error) {
		result.Cancelled = true
		if interrupted(ctx) {
			logger.Warn("transfer interrupted, link lost", slog.Int("sent", result.Sent), slog.Int("total", result.Total))
			return result, opError(op, ErrLinkUnavailable, link.ErrNotConnected)
		}
		logger.Info("transfer cancelled", slog.Int("sent", result.Sent), slog.Int("total", result.Total))
		return result, nil
	}

	if err = s.send(ctx, link.TripUpload{Trip: *t, TileCount: len(coords)}); err != nil {
		if ctx.Err() != nil {
			return stopped()
		}
		s.fail(op, "Failed to send the trip", err)
		return result, opError(op, kindOf(err), err)
	}

	for i, coord := range coords {
		if ctx.Err() != nil {
			return stopped()
		}

		data, err := s.tile(ctx, coord)
		if err != nil {
			logger.Warn(fmt.Sprintf("skipping tile %s: %s", coord, err.Error()))
			result.Failed++
			continue
		}

		msg := link.TileUpload{
			TripName: t.Name,
			Tile:     trip.Tile{Coord: coord, Data: data},
			Index:    i,
			Total:    len(coords),
		}
		if err = s.send(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return stopped()
			}
			s.fail(op, "Failed to send map tiles", err)
			return result, opError(op, kindOf(err), err)
		}

		result.Sent++
		s.machine.progressTransfer(result.Sent)
	}

	s.machine.addTrip(t.Name)
	logger.Info("transfer completed", slog.Int("sent", result.Sent), slog.Int("failed", result.Failed))
	s.notify(NoticeInfo, op, fmt.Sprintf("Trip '%s' sent to the unit", t.Name))

	return result, nil
}

// SendStoredTrip loads a saved trip by name and uploads it with its tiles.
func (s *Session) SendStoredTrip(ctx context.Context, name string) (TransferResult, error) {
	t, err := s.deps.Storage.LoadTrip(ctx, name)
	if err != nil {
		op := fmt.Sprintf("send trip '%s'", name)
		if errors.Is(err, storage.ErrNotFound) {
			return TransferResult{}, opError(op, ErrInvalidData, err)
		}
		return TransferResult{}, opError(op, nil, fmt.Errorf("loading: %w", err))
	}
	return s.SendTripAndTiles(ctx, t)
}

// CancelTransfer stops the running upload, if any.
func (s *Session) CancelTransfer() {
	s.cancelJob(&s.transfer, nil)
}

// tile loads a tile from storage, fetching and caching it when missing.
func (s *Session) tile(ctx context.Context, coord trip.TileCoord) ([]byte, error) {
	data, err := s.deps.Storage.LoadTile(ctx, coord)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if data, err = s.deps.Tiles.Tile(ctx, coord); err != nil {
		return nil, err
	}
	if err = s.deps.Storage.SaveTile(ctx, trip.Tile{Coord: coord, Data: data}); err != nil {
		s.logger.Warn(fmt.Sprintf("error caching tile %s: %s", coord, err.Error()))
	}
	return data, nil
}

// DownloadTiles fetches the tiles covering b at zooms, runs them through
// preprocess and stores them. onProgress receives the number of finished
// tiles and the total; it is never called concurrently.
func (s *Session) DownloadTiles(ctx context.Context, b trip.BoundingBox, zooms []int, preprocess PreprocessFunc, onProgress func(done, total int)) (TileBatchResult, error) {
	const op = "download tiles"

	if !s.online() {
		return TileBatchResult{}, opError(op, ErrLinkUnavailable, nil)
	}
	if len(zooms) == 0 {
		zooms = s.config.TileZooms
	}

	coords, err := trip.TilesForBounds(b, zooms...)
	if err != nil {
		return TileBatchResult{}, opError(op, ErrInvalidData, err)
	}

	result := TileBatchResult{Total: len(coords)}

	var mu sync.Mutex
	var bytes uint64
	record := func(coord trip.TileCoord, n int, err error) {
		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			result.Failed++
			if result.FirstError == "" {
				result.FirstError = fmt.Sprintf("tile %s: %s", coord, err.Error())
			}
		} else {
			result.Downloaded++
			bytes += uint64(n)
		}

		if onProgress != nil {
			onProgress(result.Downloaded+result.Failed, result.Total)
		}
	}

	work := make(chan trip.TileCoord)
	var wg sync.WaitGroup
	for range min(s.config.TileWorkers, len(coords)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for coord := range work {
				n, err := s.downloadTile(ctx, coord, preprocess)
				record(coord, n, err)
			}
		}()
	}

feed:
	for _, coord := range coords {
		select {
		case work <- coord:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	s.logger.Info("tiles downloaded",
		slog.Int("downloaded", result.Downloaded),
		slog.Int("failed", result.Failed),
		slog.Int("total", result.Total),
		slog.String("size", humanize.Bytes(bytes)))

	if ctx.Err() != nil {
		return result, opError(op, nil, ctx.Err())
	}
	return result, nil
}

func (s *Session) downloadTile(ctx context.Context, coord trip.TileCoord, preprocess PreprocessFunc) (int, error) {
	data, err := s.deps.Tiles.Tile(ctx, coord)
	if err != nil {
		return 0, err
	}

	if preprocess != nil {
		if data, err = preprocess(coord, data); err != nil {
			return 0, fmt.Errorf("preprocessing: %w", err)
		}
	}

	if err = s.deps.Storage.SaveTile(ctx, trip.Tile{Coord: coord, Data: data}); err != nil {
		return 0, fmt.Errorf("saving: %w", err)
	}
	return len(data), nil
}

// DownloadRecording fetches a recording from the unit, merges the metadata
// the unit reported for it, saves it and marks it as added. A recording that
// was already downloaded is returned without contacting the unit.
func (s *Session) DownloadRecording(ctx context.Context, name string) (*trip.Trip, error) {
	op := fmt.Sprintf("download recording '%s'", name)

	if t := s.cached(name); t != nil {
		return t, nil
	}

	stored, err := s.deps.Storage.LoadRecording(ctx, name)
	switch {
	case err == nil:
		s.cache(stored)
		return stored, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, opError(op, nil, err)
	}

	ctx, j, err := s.startJob(ctx, &s.download, name, func() error {
		return s.machine.beginDownload(name)
	})
	if err != nil {
		return nil, opError(op, err, nil)
	}
	defer s.machine.finishJob(PhaseDownloading)
	defer s.endJob(&s.download, j)

	logger := s.logger.With(slog.String("job", j.id), slog.String("recording", name))
	logger.Info("download started")

	data, err := s.link.Download(ctx, name, func(received, total int64) {
		percentage := 0
		message := humanize.Bytes(uint64(received))
		if total > 0 {
			percentage = int(received * 100 / total)
			message = fmt.Sprintf("%s of %s", humanize.Bytes(uint64(received)), humanize.Bytes(uint64(total)))
		}
		s.machine.progressDownload(percentage, message)
	})
	if err != nil {
		if ctx.Err() != nil {
			if interrupted(ctx) {
				logger.Warn("download interrupted, link lost")
				return nil, opError(op, ErrLinkUnavailable, link.ErrNotConnected)
			}
			logger.Info("download cancelled")
			return nil, opError(op, nil, ctx.Err())
		}
		s.fail(op, "Recording download failed", err)
		return nil, opError(op, kindOf(err), err)
	}

	parsed, err := s.deps.Parser.Parse(name, data)
	if err != nil {
		s.fail(op, "Recording could not be read", err)
		return nil, opError(op, ErrInvalidData, err)
	}

	info, ok := s.machine.recording(name)
	if !ok {
		info = trip.RecordingInfo{Name: name, SizeBytes: int64(len(data))}
	}

	t := s.deps.Merger.Merge(parsed, info)
	t.Name = name
	t.Recorded = true

	if err = s.deps.Storage.SaveRecording(ctx, t); err != nil {
		s.fail(op, "Recording could not be saved", err)
		return nil, opError(op, nil, fmt.Errorf("saving: %w", err))
	}
	if err = s.deps.Storage.MarkRecordingAdded(ctx, name); err != nil {
		logger.Warn(fmt.Sprintf("error marking recording as added: %s", err.Error()))
	}

	s.cache(t)
	logger.Info("download completed", slog.String("size", humanize.Bytes(uint64(len(data)))))
	s.notify(NoticeInfo, op, fmt.Sprintf("Recording '%s' downloaded", name))

	return t, nil
}

// CancelDownload stops the running recording download, if any.
func (s *Session) CancelDownload() {
	s.cancelJob(&s.download, nil)
}

func (s *Session) cached(name string) *trip.Trip {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	return s.completed[name]
}

func (s *Session) cache(t *trip.Trip) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	s.completed[t.Name] = t
}

// startJob runs begin and registers the job under one lock, so a cancel
// issued once the busy phase is visible always finds the job.
func (s *Session) startJob(ctx context.Context, slot **job, name string, begin func() error) (context.Context, *job, error) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if err := begin(); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	j := &job{id: uuid.NewString(), name: name, cancel: cancel}
	*slot = j

	return ctx, j, nil
}

func (s *Session) endJob(slot **job, j *job) {
	j.cancel(nil)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if *slot == j {
		*slot = nil
	}
}

// cancelJob cancels the job in slot with cause; a nil cause is a cancel request.
func (s *Session) cancelJob(slot **job, cause error) {
	s.jobsMu.Lock()
	j := *slot
	s.jobsMu.Unlock()

	if j != nil {
		s.logger.Info("cancelling job", slog.String("job", j.id), slog.String("name", j.name))
		j.cancel(cause)
	}
}

func (s *Session) cancelJobs(cause error) {
	s.cancelJob(&s.transfer, cause)
	s.cancelJob(&s.download, cause)
}

// interrupted reports whether ctx was cancelled by a link loss.
func interrupted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrLinkUnavailable)
}
