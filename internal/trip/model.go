package trip

import (
	"time"
)

// Point is a single GPS track point.
type Point struct {
	Lat       float64  `json:"lat"`                 // Latitude in degrees
	Lon       float64  `json:"lon"`                 // Longitude in degrees
	Elevation *float64 `json:"elevation,omitempty"` // Elevation in meters, nil if unknown
}

// BoundingBox is a geographic rectangle in degrees.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// IsZero reports whether the box was never set.
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}

// Trip is a named route with metadata derived from its track.
type Trip struct {
	Name           string      `json:"name"`           // Unique trip name, also used as the file ID on the unit
	Points         []Point     `json:"points"`         // Ordered track points
	DistanceMeters float64     `json:"distanceMeters"` // Total track length
	ElevationGain  float64     `json:"elevationGain"`  // Sum of positive elevation deltas in meters
	ElevationLoss  float64     `json:"elevationLoss"`  // Sum of negative elevation deltas in meters
	Bounds         BoundingBox `json:"bounds"`         // Bounding box of all points
	CreatedAt      time.Time   `json:"createdAt"`
	Recorded       bool        `json:"recorded"` // True when the trip was recorded by the unit
}

// RecordingInfo is the metadata the unit reports for a recording it holds.
type RecordingInfo struct {
	Name           string        `json:"name"`
	StartedAt      time.Time     `json:"startedAt"`
	Duration       time.Duration `json:"duration"`
	DistanceMeters float64       `json:"distanceMeters"`
	SizeBytes      int64         `json:"sizeBytes"`
}

// TileCoord addresses one slippy map tile.
type TileCoord struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// Tile is a pre-rendered map tile ready to be sent to the unit.
type Tile struct {
	Coord TileCoord `json:"coord"`
	Data  []byte    `json:"data"`
}
