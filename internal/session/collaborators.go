package session

import (
	"context"
	"time"

	"github.com/roman-kulish/unit-companion/internal/link"
	"github.com/roman-kulish/unit-companion/internal/phone"
	"github.com/roman-kulish/unit-companion/internal/trip"
)

// Connectivity reports whether the phone has a usable network connection.
type Connectivity interface {
	Online() bool
}

// WeatherSource fetches current conditions and the hourly forecast.
type WeatherSource interface {
	Weather(ctx context.Context, lat, lon float64) (link.WeatherReport, error)
}

// RadarQuery selects one radar image. A zero Time selects the latest
// available frame; Nowcast selects a forecast frame instead of history.
type RadarQuery struct {
	Lat     float64
	Lon     float64
	Zoom    int
	Time    time.Time
	Nowcast bool
}

// RadarImage is a raw radar frame and the time it represents.
type RadarImage struct {
	Data      []byte
	Timestamp time.Time
}

// RadarSource fetches radar imagery.
type RadarSource interface {
	Frame(ctx context.Context, q RadarQuery) (RadarImage, error)
}

// FrameProcessor prepares a radar frame for the unit display.
type FrameProcessor interface {
	Process(data []byte, label string) ([]byte, error)
}

// Router computes a route between two points.
type Router interface {
	Route(ctx context.Context, from, to trip.Point) ([]trip.Point, error)
}

// TileSource fetches a map tile from the network.
type TileSource interface {
	Tile(ctx context.Context, coord trip.TileCoord) ([]byte, error)
}

// Storage persists trips, recordings and tiles.
type Storage interface {
	SaveTrip(ctx context.Context, t *trip.Trip) error
	LoadTrip(ctx context.Context, name string) (*trip.Trip, error)
	SaveRecording(ctx context.Context, t *trip.Trip) error
	LoadRecording(ctx context.Context, name string) (*trip.Trip, error)
	MarkRecordingAdded(ctx context.Context, name string) error
	SaveTile(ctx context.Context, tile trip.Tile) error
	LoadTile(ctx context.Context, coord trip.TileCoord) ([]byte, error)
}

// MediaController executes media commands on the phone.
type MediaController interface {
	Execute(ctx context.Context, action link.MediaAction) error
}

// NotificationController manages notification forwarding to the unit.
type NotificationController interface {
	SetSyncEnabled(ctx context.Context, enabled bool) error
	Dismiss(ctx context.Context, id string) error
}

// RecordingParser decodes a recording downloaded from the unit.
type RecordingParser interface {
	Parse(name string, data []byte) (*trip.Trip, error)
}

// MetadataMerger overlays recording metadata reported by the unit onto a
// parsed track.
type MetadataMerger interface {
	Merge(t *trip.Trip, info trip.RecordingInfo) *trip.Trip
}

// PreprocessFunc transforms a downloaded tile before it is stored.
type PreprocessFunc func(coord trip.TileCoord, data []byte) ([]byte, error)

// Dependencies are the collaborators of a Session. Connectivity and Overlay
// are optional: without them the phone is assumed online and radar frames
// are sent unprocessed.
type Dependencies struct {
	Phone         phone.Provider
	Connectivity  Connectivity
	Weather       WeatherSource
	Radar         RadarSource
	Overlay       FrameProcessor
	Router        Router
	Tiles         TileSource
	Storage       Storage
	Media         MediaController
	Notifications NotificationController
	Parser        RecordingParser
	Merger        MetadataMerger
}
