package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roman-kulish/unit-companion/internal/trip"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toTripData(t *trip.Trip) (*tripData, error) {
	points, err := json.Marshal(t.Points)
	if err != nil {
		return nil, fmt.Errorf("marshaling points: %w", err)
	}

	return &tripData{
		Name:           t.Name,
		Recorded:       t.Recorded,
		Points:         string(points),
		DistanceMeters: t.DistanceMeters,
		ElevationGain:  t.ElevationGain,
		ElevationLoss:  t.ElevationLoss,
		CreatedAt:      t.CreatedAt.UTC(),
	}, nil
}

func fromTripData(d *tripData) (*trip.Trip, error) {
	var points []trip.Point
	if err := json.Unmarshal([]byte(d.Points), &points); err != nil {
		return nil, fmt.Errorf("unmarshaling points: %w", err)
	}

	return &trip.Trip{
		Name:           d.Name,
		Points:         points,
		DistanceMeters: d.DistanceMeters,
		ElevationGain:  d.ElevationGain,
		ElevationLoss:  d.ElevationLoss,
		Bounds:         trip.BoundsOf(points),
		CreatedAt:      d.CreatedAt.UTC(),
		Recorded:       d.Recorded,
	}, nil
}
