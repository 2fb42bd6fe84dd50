package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"goride/internal/gtfs"
)

// ReplaceAll atomically supersedes the previous generation with the given
// entities. It runs in a single transaction: on any failure the previous
// generation remains queryable and no partial generation is ever visible.
// Concurrent imports serialize on an internal mutex. Returns the new
// generation id.
func (s *Store) ReplaceAll(ctx context.Context, ents *gtfs.Entities, source string) (string, error) {
	s.importMu.Lock()
	defer s.importMu.Unlock()

	start := time.Now()
	generation := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"stop_times", "trips", "calendar_dates", "calendar",
		"stops", "routes", "stops_rtree", "feed_metadata",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return "", fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := insertRoutes(ctx, tx, ents.Routes); err != nil {
		return "", err
	}
	if err := insertStops(ctx, tx, ents.Stops); err != nil {
		return "", err
	}
	if err := insertCalendar(ctx, tx, ents.Services, ents.Exceptions); err != nil {
		return "", err
	}
	if err := insertTrips(ctx, tx, ents.Trips); err != nil {
		return "", err
	}
	if err := insertStopTimes(ctx, tx, ents.StopTimes); err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stops_rtree(id, min_lat, max_lat, min_lon, max_lon)
		 SELECT rowid, lat, lat, lon, lon FROM stops`); err != nil {
		return "", fmt.Errorf("populate rtree: %w", err)
	}

	meta := map[string]string{
		"generation":  generation,
		"imported_at": time.Now().UTC().Format(time.RFC3339),
		"source":      source,
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feed_metadata (key, value) VALUES (?, ?)`, k, v); err != nil {
			return "", fmt.Errorf("set metadata %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("schedule generation replaced",
		"generation", generation,
		"source", source,
		"duration", time.Since(start).Round(time.Millisecond),
		"stops", len(ents.Stops),
		"routes", len(ents.Routes),
		"trips", len(ents.Trips),
		"stop_times", len(ents.StopTimes),
	)
	return generation, nil
}

func insertRoutes(ctx context.Context, tx *sql.Tx, routes []gtfs.Route) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO routes (route_id, short_name, long_name, mode, color, text_color)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare routes: %w", err)
	}
	defer stmt.Close()

	for _, r := range routes {
		if _, err := stmt.ExecContext(ctx, r.ID, r.ShortName, r.LongName,
			int(r.Mode), r.Color, r.TextColor); err != nil {
			return fmt.Errorf("insert route %s: %w", r.ID, err)
		}
	}
	return nil
}

func insertStops(ctx context.Context, tx *sql.Tx, stops []gtfs.Stop) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stops (stop_id, name, normalized_name, lat, lon, location_type, parent_station)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stops: %w", err)
	}
	defer stmt.Close()

	for _, st := range stops {
		if _, err := stmt.ExecContext(ctx, st.ID, st.Name, gtfs.NormalizeName(st.Name),
			st.Lat, st.Lon, int(st.LocationType), st.ParentStation); err != nil {
			return fmt.Errorf("insert stop %s: %w", st.ID, err)
		}
	}
	return nil
}

func insertCalendar(ctx context.Context, tx *sql.Tx, services []gtfs.Service, exceptions []gtfs.ServiceException) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO calendar (service_id, sunday, monday, tuesday, wednesday,
		 thursday, friday, saturday, start_date, end_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare calendar: %w", err)
	}
	defer stmt.Close()

	for _, svc := range services {
		args := make([]any, 0, 10)
		args = append(args, svc.ID)
		for _, active := range svc.Weekdays {
			args = append(args, boolToInt(active))
		}
		args = append(args, svc.StartDate, svc.EndDate)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert calendar %s: %w", svc.ID, err)
		}
	}

	exStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO calendar_dates (service_id, date, exception_type) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare calendar_dates: %w", err)
	}
	defer exStmt.Close()

	for _, ex := range exceptions {
		exType := 2
		if ex.Added {
			exType = 1
		}
		if _, err := exStmt.ExecContext(ctx, ex.ServiceID, ex.Date, exType); err != nil {
			return fmt.Errorf("insert calendar_date %s/%s: %w", ex.ServiceID, ex.Date, err)
		}
	}
	return nil
}

func insertTrips(ctx context.Context, tx *sql.Tx, trips []gtfs.Trip) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trips (trip_id, route_id, service_id, headsign, direction_id)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trips: %w", err)
	}
	defer stmt.Close()

	for _, t := range trips {
		if _, err := stmt.ExecContext(ctx, t.ID, t.RouteID, t.ServiceID,
			t.Headsign, t.DirectionID); err != nil {
			return fmt.Errorf("insert trip %s: %w", t.ID, err)
		}
	}
	return nil
}

func insertStopTimes(ctx context.Context, tx *sql.Tx, stopTimes []gtfs.StopTime) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stop_times (trip_id, stop_id, arrival_min, departure_min, stop_sequence)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stop_times: %w", err)
	}
	defer stmt.Close()

	for i, st := range stopTimes {
		if _, err := stmt.ExecContext(ctx, st.TripID, st.StopID,
			st.ArrivalMinutes, st.DepartureMinutes, st.StopSequence); err != nil {
			return fmt.Errorf("insert stop_time row %d: %w", i, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
