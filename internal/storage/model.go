package storage

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// tripData is a row of the trips table.
type tripData struct {
	Name           string
	Recorded       bool
	Points         string // JSON encoded []trip.Point
	DistanceMeters float64
	ElevationGain  float64
	ElevationLoss  float64
	CreatedAt      time.Time
	Added          bool
}

// Stats summarizes what the store holds.
type Stats struct {
	Trips         int
	Recordings    int
	Tiles         int
	TileBytes     int64
	DatabaseBytes int64
}

func (s Stats) String() string {
	return fmt.Sprintf("%d trips, %d recordings, %d tiles (%s), database %s",
		s.Trips,
		s.Recordings,
		s.Tiles,
		humanize.Bytes(uint64(s.TileBytes)),
		humanize.Bytes(uint64(s.DatabaseBytes)))
}
