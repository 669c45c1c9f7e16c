package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/roman-kulish/unit-companion/internal/trip"
)

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened and the schema initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// the database file and schema must exist before a read-only open
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) SaveTrip(ctx context.Context, t *trip.Trip) error {
	return s.saveTrip(ctx, t, false)
}

func (s *SqliteStore) SaveRecording(ctx context.Context, t *trip.Trip) error {
	return s.saveTrip(ctx, t, true)
}

func (s *SqliteStore) saveTrip(ctx context.Context, t *trip.Trip, recorded bool) (err error) {
	if t == nil || t.Name == "" {
		return errors.New("trip name is required")
	}

	data, err := toTripData(t)
	if err != nil {
		return err
	}
	data.Recorded = recorded

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, upsertTripSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(
		ctx,
		data.Name,
		data.Recorded,
		data.Points,
		data.DistanceMeters,
		data.ElevationGain,
		data.ElevationLoss,
		data.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting trip: %w", err)
	}

	return nil
}

func (s *SqliteStore) LoadTrip(ctx context.Context, name string) (*trip.Trip, error) {
	return s.loadTrip(ctx, name, false)
}

func (s *SqliteStore) LoadRecording(ctx context.Context, name string) (*trip.Trip, error) {
	return s.loadTrip(ctx, name, true)
}

func (s *SqliteStore) loadTrip(ctx context.Context, name string, recorded bool) (t *trip.Trip, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectTripSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data tripData
	err = stmt.QueryRowContext(ctx, name, recorded).Scan(
		&data.Name,
		&data.Recorded,
		&data.Points,
		&data.DistanceMeters,
		&data.ElevationGain,
		&data.ElevationLoss,
		&data.CreatedAt,
		&data.Added,
	)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("trip '%s': %w", name, ErrNotFound)
		return
	}
	if err != nil {
		err = fmt.Errorf("scanning trip: %w", err)
		return
	}

	return fromTripData(&data)
}

func (s *SqliteStore) TripNames(ctx context.Context, recorded bool) (names []string, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectTripNamesSQL, recorded)
	if err != nil {
		err = fmt.Errorf("querying trips: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			err = fmt.Errorf("scanning trip name: %w", err)
			return
		}
		names = append(names, name)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) MarkRecordingAdded(ctx context.Context, name string) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, markRecordingAddedSQL, name)
	if err != nil {
		return fmt.Errorf("marking recording: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recording '%s': %w", name, ErrNotFound)
	}
	return nil
}

func (s *SqliteStore) SaveTile(ctx context.Context, tile trip.Tile) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, upsertTileSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, tile.Coord.Z, tile.Coord.X, tile.Coord.Y, tile.Data); err != nil {
		return fmt.Errorf("inserting tile %s: %w", tile.Coord, err)
	}
	return nil
}

func (s *SqliteStore) LoadTile(ctx context.Context, coord trip.TileCoord) (data []byte, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	err = db.QueryRowContext(ctx, selectTileSQL, coord.Z, coord.X, coord.Y).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("tile %s: %w", coord, ErrNotFound)
		return
	}
	if err != nil {
		err = fmt.Errorf("scanning tile %s: %w", coord, err)
	}
	return
}

func (s *SqliteStore) Stats(ctx context.Context) (stats Stats, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	if err = tx.QueryRowContext(ctx, selectTripStatsSQL).Scan(&stats.Trips, &stats.Recordings); err != nil {
		err = fmt.Errorf("counting trips: %w", err)
		return
	}
	if err = tx.QueryRowContext(ctx, selectTileStatsSQL).Scan(&stats.Tiles, &stats.TileBytes); err != nil {
		err = fmt.Errorf("counting tiles: %w", err)
		return
	}
	if err = tx.QueryRowContext(ctx, selectDatabaseSizeSQL).Scan(&stats.DatabaseBytes); err != nil {
		err = fmt.Errorf("measuring database: %w", err)
		return
	}

	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
