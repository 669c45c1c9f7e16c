package storage

import (
	_ "embed"
)

const (
	upsertTripSQL = `
INSERT INTO trips (name,
                   recorded,
                   points,
                   distance_meters,
                   elevation_gain,
                   elevation_loss,
                   created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (name, recorded) DO UPDATE SET points          = excluded.points,
                                           distance_meters = excluded.distance_meters,
                                           elevation_gain  = excluded.elevation_gain,
                                           elevation_loss  = excluded.elevation_loss,
                                           created_at      = excluded.created_at`

	selectTripSQL = `
SELECT 
    name, 
    recorded, 
    points, 
    distance_meters, 
    elevation_gain, 
    elevation_loss, 
    created_at, 
    added 
FROM trips 
WHERE 
    name = ? AND recorded = ?`

	selectTripNamesSQL = `
SELECT 
    name 
FROM trips 
WHERE 
    recorded = ? 
ORDER BY created_at, name`

	markRecordingAddedSQL = `
UPDATE trips 
SET added = 1 
WHERE 
    name = ? AND recorded = 1`

	upsertTileSQL = `
INSERT INTO tiles (z, x, y, data, fetched_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (z, x, y) DO UPDATE SET data       = excluded.data,
                                    fetched_at = excluded.fetched_at`

	selectTileSQL = `
SELECT 
    data 
FROM tiles 
WHERE 
    z = ? AND x = ? AND y = ?`

	selectTripStatsSQL = `
SELECT 
    COALESCE(SUM(CASE WHEN recorded = 0 THEN 1 ELSE 0 END), 0), 
    COALESCE(SUM(CASE WHEN recorded = 1 THEN 1 ELSE 0 END), 0) 
FROM trips`

	selectTileStatsSQL = `
SELECT 
    COUNT(*), 
    COALESCE(SUM(LENGTH(data)), 0) 
FROM tiles`

	selectDatabaseSizeSQL = `
SELECT 
    page_count * page_size 
FROM pragma_page_count(), pragma_page_size()`
)

//go:embed schema.sql
var schemaSQL string
