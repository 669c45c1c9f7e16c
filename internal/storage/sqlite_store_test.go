package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/unit-companion/internal/trip"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	store := NewSqliteStore(filepath.Join(t.TempDir(), "companion.db"))
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return store
}

func newTrip(t *testing.T, name string, createdAt time.Time) *trip.Trip {
	t.Helper()

	elevation := 120.5
	tr, err := trip.New(name, []trip.Point{
		{Lat: 51.50, Lon: -0.20, Elevation: &elevation},
		{Lat: 51.52, Lon: -0.10},
		{Lat: 51.55, Lon: 0.01},
	}, createdAt)
	if err != nil {
		t.Fatalf("Failed to create trip: %v", err)
	}
	return tr
}

func TestSqliteStore_Trips(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	original := newTrip(t, "Commute", created)

	if err := store.SaveTrip(ctx, original); err != nil {
		t.Fatalf("Failed to save trip: %v", err)
	}

	loaded, err := store.LoadTrip(ctx, "Commute")
	if err != nil {
		t.Fatalf("Failed to load trip: %v", err)
	}

	if loaded.Name != original.Name {
		t.Errorf("Expected name %q, got %q", original.Name, loaded.Name)
	}
	if len(loaded.Points) != len(original.Points) {
		t.Fatalf("Expected %d points, got %d", len(original.Points), len(loaded.Points))
	}
	if loaded.Points[0].Elevation == nil || *loaded.Points[0].Elevation != 120.5 {
		t.Errorf("Expected first point elevation 120.5, got %v", loaded.Points[0].Elevation)
	}
	if loaded.Points[1].Elevation != nil {
		t.Errorf("Expected second point without elevation, got %v", *loaded.Points[1].Elevation)
	}
	if loaded.DistanceMeters != original.DistanceMeters {
		t.Errorf("Expected distance %f, got %f", original.DistanceMeters, loaded.DistanceMeters)
	}
	if loaded.Bounds != original.Bounds {
		t.Errorf("Expected bounds %+v, got %+v", original.Bounds, loaded.Bounds)
	}
	if !loaded.CreatedAt.Equal(created) {
		t.Errorf("Expected created at %s, got %s", created, loaded.CreatedAt)
	}
	if loaded.Recorded {
		t.Error("Expected a planned trip")
	}

	// saving again replaces the stored trip
	original.DistanceMeters = 42
	if err = store.SaveTrip(ctx, original); err != nil {
		t.Fatalf("Failed to overwrite trip: %v", err)
	}
	if loaded, err = store.LoadTrip(ctx, "Commute"); err != nil {
		t.Fatalf("Failed to reload trip: %v", err)
	}
	if loaded.DistanceMeters != 42 {
		t.Errorf("Expected distance 42, got %f", loaded.DistanceMeters)
	}

	if _, err = store.LoadTrip(ctx, "Missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSqliteStore_TripNames(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"Later", "Earlier"} {
		if err := store.SaveTrip(ctx, newTrip(t, name, base.Add(time.Duration(1-i)*time.Hour))); err != nil {
			t.Fatalf("Failed to save trip: %v", err)
		}
	}
	if err := store.SaveRecording(ctx, newTrip(t, "Ride", base)); err != nil {
		t.Fatalf("Failed to save recording: %v", err)
	}

	tests := []struct {
		name     string
		recorded bool
		want     []string
	}{
		{"planned trips", false, []string{"Earlier", "Later"}},
		{"recordings", true, []string{"Ride"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, err := store.TripNames(ctx, tt.recorded)
			if err != nil {
				t.Fatalf("Failed to list names: %v", err)
			}
			if len(names) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, names)
			}
			for i := range names {
				if names[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, names)
					break
				}
			}
		})
	}
}

func TestSqliteStore_Recordings(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.MarkRecordingAdded(ctx, "Ride"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unsaved recording, got %v", err)
	}

	// a planned trip with the same name does not satisfy recording lookups
	if err := store.SaveTrip(ctx, newTrip(t, "Ride", time.Now())); err != nil {
		t.Fatalf("Failed to save trip: %v", err)
	}
	if _, err := store.LoadRecording(ctx, "Ride"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	recording := newTrip(t, "Ride", time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC))
	recording.Recorded = true
	if err := store.SaveRecording(ctx, recording); err != nil {
		t.Fatalf("Failed to save recording: %v", err)
	}
	if err := store.MarkRecordingAdded(ctx, "Ride"); err != nil {
		t.Fatalf("Failed to mark recording: %v", err)
	}

	loaded, err := store.LoadRecording(ctx, "Ride")
	if err != nil {
		t.Fatalf("Failed to load recording: %v", err)
	}
	if !loaded.Recorded {
		t.Error("Expected a recorded trip")
	}
}

func TestSqliteStore_Tiles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	coord := trip.TileCoord{Z: 12, X: 2046, Y: 1362}

	if _, err := store.LoadTile(ctx, coord); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	for _, data := range []string{"first", "second"} {
		if err := store.SaveTile(ctx, trip.Tile{Coord: coord, Data: []byte(data)}); err != nil {
			t.Fatalf("Failed to save tile: %v", err)
		}
	}

	data, err := store.LoadTile(ctx, coord)
	if err != nil {
		t.Fatalf("Failed to load tile: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("Expected %q, got %q", "second", data)
	}
}

func TestSqliteStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to read stats on an empty store: %v", err)
	}
	if stats.Trips != 0 || stats.Tiles != 0 {
		t.Errorf("Expected an empty store, got %+v", stats)
	}

	_ = store.SaveTrip(ctx, newTrip(t, "Commute", time.Now()))
	_ = store.SaveRecording(ctx, newTrip(t, "Ride", time.Now()))
	_ = store.SaveTile(ctx, trip.Tile{Coord: trip.TileCoord{Z: 1}, Data: make([]byte, 1500)})
	_ = store.SaveTile(ctx, trip.Tile{Coord: trip.TileCoord{Z: 2}, Data: make([]byte, 500)})

	if stats, err = store.Stats(ctx); err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}

	want := Stats{Trips: 1, Recordings: 1, Tiles: 2, TileBytes: 2000}
	if stats.Trips != want.Trips || stats.Recordings != want.Recordings || stats.Tiles != want.Tiles || stats.TileBytes != want.TileBytes {
		t.Errorf("Expected %+v, got %+v", want, stats)
	}
	if stats.DatabaseBytes <= 0 {
		t.Errorf("Expected a positive database size, got %d", stats.DatabaseBytes)
	}
}

func TestStats_String(t *testing.T) {
	stats := Stats{Trips: 2, Recordings: 1, Tiles: 3, TileBytes: 2000, DatabaseBytes: 1_500_000}

	want := "2 trips, 1 recordings, 3 tiles (2.0 kB), database 1.5 MB"
	if got := stats.String(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
