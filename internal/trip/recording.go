package trip

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownFormat is returned for recordings that are neither GPX nor JSON.
var ErrUnknownFormat = errors.New("unknown recording format")

type gpxDocument struct {
	Metadata struct {
		Time string `xml:"time"`
	} `xml:"metadata"`
	Tracks []struct {
		Segments []struct {
			Points []struct {
				Lat       float64  `xml:"lat,attr"`
				Lon       float64  `xml:"lon,attr"`
				Elevation *float64 `xml:"ele"`
				Time      string   `xml:"time"`
			} `xml:"trkpt"`
		} `xml:"trkseg"`
	} `xml:"trk"`
}

type jsonRecording struct {
	StartedAt time.Time `json:"startedAt"`
	Points    []Point   `json:"points"`
}

// RecordingParser decodes recordings downloaded from the unit. It accepts GPX
// tracks and the unit's JSON track format.
type RecordingParser struct{}

func (RecordingParser) Parse(name string, data []byte) (*Trip, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyTrack
	}

	switch data[0] {
	case '<':
		return parseGPX(name, data)
	case '{':
		return parseJSON(name, data)
	default:
		return nil, ErrUnknownFormat
	}
}

func parseGPX(name string, data []byte) (*Trip, error) {
	var doc gpxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding GPX: %w", err)
	}

	var points []Point
	var startedAt time.Time
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				if startedAt.IsZero() && p.Time != "" {
					startedAt, _ = time.Parse(time.RFC3339, p.Time)
				}
				points = append(points, Point{Lat: p.Lat, Lon: p.Lon, Elevation: p.Elevation})
			}
		}
	}

	if doc.Metadata.Time != "" {
		if t, err := time.Parse(time.RFC3339, doc.Metadata.Time); err == nil {
			startedAt = t
		}
	}

	return New(name, points, startedAt)
}

func parseJSON(name string, data []byte) (*Trip, error) {
	var rec jsonRecording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding JSON track: %w", err)
	}
	return New(name, rec.Points, rec.StartedAt)
}

// MetadataMerger overlays the metadata the unit reports for a recording on a
// parsed track. The unit measures distance on its own sensors, so a reported
// distance wins over the one derived from the track.
type MetadataMerger struct{}

func (MetadataMerger) Merge(t *Trip, info RecordingInfo) *Trip {
	merged := *t
	if info.DistanceMeters > 0 {
		merged.DistanceMeters = info.DistanceMeters
	}
	if !info.StartedAt.IsZero() {
		merged.CreatedAt = info.StartedAt.UTC()
	}
	return &merged
}
