package storage

import "fmt"

// migrate creates the schedule schema if it doesn't exist.
func (s *Store) migrate() error {
	for i, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS routes (
		route_id   TEXT PRIMARY KEY,
		short_name TEXT NOT NULL DEFAULT '',
		long_name  TEXT NOT NULL DEFAULT '',
		mode       INTEGER NOT NULL DEFAULT 3,
		color      TEXT NOT NULL,
		text_color TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS stops (
		stop_id         TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		lat             REAL NOT NULL,
		lon             REAL NOT NULL,
		location_type   INTEGER NOT NULL DEFAULT 0,
		parent_station  TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS calendar (
		service_id TEXT PRIMARY KEY,
		sunday     INTEGER NOT NULL DEFAULT 0,
		monday     INTEGER NOT NULL DEFAULT 0,
		tuesday    INTEGER NOT NULL DEFAULT 0,
		wednesday  INTEGER NOT NULL DEFAULT 0,
		thursday   INTEGER NOT NULL DEFAULT 0,
		friday     INTEGER NOT NULL DEFAULT 0,
		saturday   INTEGER NOT NULL DEFAULT 0,
		start_date TEXT NOT NULL,
		end_date   TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS calendar_dates (
		service_id     TEXT NOT NULL,
		date           TEXT NOT NULL,
		exception_type INTEGER NOT NULL,
		PRIMARY KEY (service_id, date)
	)`,

	`CREATE TABLE IF NOT EXISTS trips (
		trip_id      TEXT PRIMARY KEY,
		route_id     TEXT NOT NULL,
		service_id   TEXT NOT NULL,
		headsign     TEXT NOT NULL DEFAULT '',
		direction_id INTEGER NOT NULL DEFAULT 0
	)`,

	// Times are stored as minutes since the agency's local midnight,
	// unclamped, so time-window queries are integer comparisons.
	`CREATE TABLE IF NOT EXISTS stop_times (
		trip_id       TEXT NOT NULL,
		stop_id       TEXT NOT NULL,
		arrival_min   INTEGER NOT NULL,
		departure_min INTEGER NOT NULL,
		stop_sequence INTEGER NOT NULL,
		PRIMARY KEY (trip_id, stop_sequence)
	)`,

	// R-Tree spatial index on stops for bounding-box queries.
	`CREATE VIRTUAL TABLE IF NOT EXISTS stops_rtree USING rtree(
		id,
		min_lat, max_lat,
		min_lon, max_lon
	)`,

	`CREATE TABLE IF NOT EXISTS feed_metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_stop_times_stop_departure ON stop_times(stop_id, departure_min)`,
	`CREATE INDEX IF NOT EXISTS idx_stop_times_trip ON stop_times(trip_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trips_route ON trips(route_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trips_service ON trips(service_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stops_normalized_name ON stops(normalized_name)`,
	`CREATE INDEX IF NOT EXISTS idx_calendar_dates_date ON calendar_dates(date)`,
}
