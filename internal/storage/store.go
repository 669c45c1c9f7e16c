package storage

import (
	"context"
	"errors"

	_ "github.com/mattn/go-sqlite3"
	"github.com/roman-kulish/unit-companion/internal/trip"
)

// ErrNotFound is returned when a trip, recording or tile is not stored.
var ErrNotFound = errors.New("not found")

// Store provides an interface for persisting planned trips, recordings downloaded
// from the unit and cached map tiles. It is safe for concurrent use.
// Planned trips and recordings live in separate namespaces, so a recording may
// share its name with a planned trip.
type Store interface {
	// SaveTrip stores a planned trip, replacing any trip with the same name.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - t: Trip to store; its points are kept in order
	//
	// Returns:
	//   - error: If the trip cannot be encoded or stored, or context is cancelled
	SaveTrip(ctx context.Context, t *trip.Trip) error

	// LoadTrip retrieves a planned trip by name.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - name: Trip name
	//
	// Returns:
	//   - trip: Stored trip with its bounds recomputed from the track
	//   - error: ErrNotFound if no such trip exists, or if retrieval fails
	LoadTrip(ctx context.Context, name string) (*trip.Trip, error)

	// TripNames lists planned trip names, or recording names when recorded is true.
	// Results are ordered by creation time in ascending order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - recorded: Selects recordings instead of planned trips
	//
	// Returns:
	//   - names: Slice of names, empty if nothing is stored
	//   - error: If retrieval fails or context is cancelled
	TripNames(ctx context.Context, recorded bool) ([]string, error)

	// SaveRecording stores a recording downloaded from the unit. Saving a
	// recording again keeps its "added" mark.
	SaveRecording(ctx context.Context, t *trip.Trip) error

	// LoadRecording retrieves a downloaded recording by name, or ErrNotFound.
	LoadRecording(ctx context.Context, name string) (*trip.Trip, error)

	// MarkRecordingAdded flags a stored recording as added to the trip library.
	// Returns ErrNotFound if the recording was never saved.
	MarkRecordingAdded(ctx context.Context, name string) error

	// SaveTile caches a map tile, replacing any previous data for its coordinate.
	SaveTile(ctx context.Context, tile trip.Tile) error

	// LoadTile returns the cached data of a map tile, or ErrNotFound.
	LoadTile(ctx context.Context, coord trip.TileCoord) ([]byte, error)

	// Stats reports counts and sizes of the stored data.
	Stats(ctx context.Context) (Stats, error)

	// Close releases database connections. It is safe to call more than once.
	Close() error
}
