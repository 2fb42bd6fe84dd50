package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"goride/internal/geo"
	"goride/internal/gtfs"
)

// sameNameRadiusMeters is the proximity threshold for treating two stop
// records with different names as the same physical hub.
const sameNameRadiusMeters = 150

// StopByID returns a single stop, or sql.ErrNoRows wrapped in a not-found error.
func (s *Store) StopByID(ctx context.Context, id string) (*gtfs.Stop, error) {
	if _, err := s.generation(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT stop_id, name, lat, lon, location_type, parent_station
		FROM stops WHERE stop_id = ?`, id)
	st, err := scanStop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stop %s: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("stop by id: %w", err)
	}
	return st, nil
}

// RoutesByStop returns the distinct routes serving a stop.
func (s *Store) RoutesByStop(ctx context.Context, stopID string) ([]gtfs.Route, error) {
	if _, err := s.generation(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT r.route_id, r.short_name, r.long_name, r.mode, r.color, r.text_color
		FROM stop_times st
		JOIN trips t ON t.trip_id = st.trip_id
		JOIN routes r ON r.route_id = t.route_id
		WHERE st.stop_id = ?
		ORDER BY r.short_name, r.route_id`, stopID)
	if err != nil {
		return nil, fmt.Errorf("routes by stop: %w", err)
	}
	defer rows.Close()

	var routes []gtfs.Route
	for rows.Next() {
		var r gtfs.Route
		var mode int
		if err := rows.Scan(&r.ID, &r.ShortName, &r.LongName, &mode, &r.Color, &r.TextColor); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		r.Mode = gtfs.Mode(mode)
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// RouteByID returns a single route.
func (s *Store) RouteByID(ctx context.Context, id string) (*gtfs.Route, error) {
	if _, err := s.generation(ctx); err != nil {
		return nil, err
	}
	var r gtfs.Route
	var mode int
	err := s.db.QueryRowContext(ctx, `
		SELECT route_id, short_name, long_name, mode, color, text_color
		FROM routes WHERE route_id = ?`, id).
		Scan(&r.ID, &r.ShortName, &r.LongName, &mode, &r.Color, &r.TextColor)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", id, err)
	}
	r.Mode = gtfs.Mode(mode)
	return &r, nil
}

// Departure is one scheduled boarding opportunity at a stop.
type Departure struct {
	TripID           string
	RouteID          string
	RouteShortName   string
	Mode             gtfs.Mode
	Headsign         string
	DirectionID      int
	StopID           string
	StopSequence     int
	DepartureMinutes int       // unclamped minutes on the service day
	ServiceDay       time.Time // instant of the service day's local midnight
	Time             time.Time // absolute departure instant
}

// NextDepartures returns up to limit departures from a stop at or after
// `from`, ascending by time. Post-midnight service stays attached to its
// service day: the query unions today's services from the current local
// minute with yesterday's services at minute+1440.
func (s *Store) NextDepartures(ctx context.Context, stopID string, limit int, from time.Time) ([]Departure, error) {
	if _, err := s.generation(ctx); err != nil {
		return nil, err
	}

	comps := s.clock.ToLocalComponents(from)
	todayStart := s.clock.DayStart(from)
	yesterdayStart := todayStart.Add(-24 * time.Hour)

	today, err := s.departuresWindow(ctx, stopID, limit, todayStart, comps.TotalMinutes)
	if err != nil {
		return nil, err
	}
	yesterday, err := s.departuresWindow(ctx, stopID, limit, yesterdayStart, comps.TotalMinutes+minutesPerDay)
	if err != nil {
		return nil, err
	}

	deps := append(today, yesterday...)
	sort.Slice(deps, func(i, j int) bool {
		if !deps[i].Time.Equal(deps[j].Time) {
			return deps[i].Time.Before(deps[j].Time)
		}
		return deps[i].TripID < deps[j].TripID
	})
	if len(deps) > limit {
		deps = deps[:limit]
	}
	return deps, nil
}

const minutesPerDay = 24 * 60

// departuresWindow queries one service day: departures with a minute value at
// or above afterMinutes whose service is active on serviceDay.
func (s *Store) departuresWindow(ctx context.Context, stopID string, limit int, serviceDay time.Time, afterMinutes int) ([]Departure, error) {
	weekday, dateStr := s.clock.ServiceDate(serviceDay)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT st.trip_id, t.route_id, r.short_name, r.mode, t.headsign,
		       t.direction_id, st.stop_id, st.stop_sequence, st.departure_min
		FROM stop_times st
		JOIN trips t ON t.trip_id = st.trip_id
		JOIN routes r ON r.route_id = t.route_id
		WHERE st.stop_id = ?
		  AND st.departure_min >= ?
		  AND (
		    (t.service_id IN (
		       SELECT service_id FROM calendar
		       WHERE %s = 1 AND start_date <= ? AND end_date >= ?
		     ) AND t.service_id NOT IN (
		       SELECT service_id FROM calendar_dates
		       WHERE date = ? AND exception_type = 2
		     ))
		    OR t.service_id IN (
		       SELECT service_id FROM calendar_dates
		       WHERE date = ? AND exception_type = 1
		    )
		    OR (t.service_id NOT IN (SELECT service_id FROM calendar)
		        AND t.service_id NOT IN (SELECT service_id FROM calendar_dates))
		  )
		ORDER BY st.departure_min
		LIMIT ?`, dayColumn(weekday)),
		stopID, afterMinutes,
		dateStr, dateStr,
		dateStr,
		dateStr,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("departures query: %w", err)
	}
	defer rows.Close()

	var deps []Departure
	for rows.Next() {
		var d Departure
		var mode int
		if err := rows.Scan(&d.TripID, &d.RouteID, &d.RouteShortName, &mode,
			&d.Headsign, &d.DirectionID, &d.StopID, &d.StopSequence, &d.DepartureMinutes); err != nil {
			return nil, fmt.Errorf("scan departure: %w", err)
		}
		d.Mode = gtfs.Mode(mode)
		d.ServiceDay = serviceDay
		d.Time = serviceDay.Add(time.Duration(d.DepartureMinutes) * time.Minute)
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// StopTimesForTrip returns a trip's stop times ordered by stop sequence.
func (s *Store) StopTimesForTrip(ctx context.Context, tripID string) ([]gtfs.StopTime, error) {
	if _, err := s.generation(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trip_id, stop_id, arrival_min, departure_min, stop_sequence
		FROM stop_times WHERE trip_id = ?
		ORDER BY stop_sequence`, tripID)
	if err != nil {
		return nil, fmt.Errorf("stop times for trip: %w", err)
	}
	defer rows.Close()

	var times []gtfs.StopTime
	for rows.Next() {
		var st gtfs.StopTime
		if err := rows.Scan(&st.TripID, &st.StopID, &st.ArrivalMinutes,
			&st.DepartureMinutes, &st.StopSequence); err != nil {
			return nil, fmt.Errorf("scan stop time: %w", err)
		}
		times = append(times, st)
	}
	return times, rows.Err()
}

// StopsInBox returns stops inside a latitude/longitude box via the R-Tree
// index, nearest to the box center first, up to limit.
func (s *Store) StopsInBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64, limit int) ([]gtfs.Stop, error) {
	if _, err := s.generation(ctx); err != nil {
		return nil, err
	}
	centerLat := (minLat + maxLat) / 2
	centerLon := (minLon + maxLon) / 2
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.stop_id, s.name, s.lat, s.lon, s.location_type, s.parent_station
		FROM stops_rtree AS r
		JOIN stops AS s ON s.rowid = r.id
		WHERE r.min_lat >= ? AND r.max_lat <= ?
		  AND r.min_lon >= ? AND r.max_lon <= ?
		ORDER BY (s.lat - ?)*(s.lat - ?) + (s.lon - ?)*(s.lon - ?)
		LIMIT ?`,
		minLat, maxLat, minLon, maxLon,
		centerLat, centerLat, centerLon, centerLon,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("stops in box: %w", err)
	}
	defer rows.Close()

	var stops []gtfs.Stop
	for rows.Next() {
		st, err := scanStop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		stops = append(stops, *st)
	}
	return stops, rows.Err()
}

// StopsWithSameName returns every stop record at one physical hub: stops
// whose accent- and case-insensitive normalized name matches, plus stops
// within close proximity of the given point. A station may register separate
// stop rows per mode; this surfaces all of them.
func (s *Store) StopsWithSameName(ctx context.Context, name string, lat, lon float64) ([]gtfs.Stop, error) {
	if _, err := s.generation(ctx); err != nil {
		return nil, err
	}
	latDeg, lonDeg := geo.BoundingBoxRadius(lat, sameNameRadiusMeters)
	rows, err := s.db.QueryContext(ctx, `
		SELECT stop_id, name, lat, lon, location_type, parent_station
		FROM stops
		WHERE normalized_name = ?
		   OR (lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?)
		ORDER BY stop_id`,
		gtfs.NormalizeName(name),
		lat-latDeg, lat+latDeg,
		lon-lonDeg, lon+lonDeg,
	)
	if err != nil {
		return nil, fmt.Errorf("stops with same name: %w", err)
	}
	defer rows.Close()

	var stops []gtfs.Stop
	normalized := gtfs.NormalizeName(name)
	for rows.Next() {
		st, err := scanStop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		// The box over-matches at its corners; keep proximity matches only
		// within the true radius.
		if gtfs.NormalizeName(st.Name) != normalized &&
			geo.Haversine(lat, lon, st.Lat, st.Lon) > sameNameRadiusMeters {
			continue
		}
		stops = append(stops, *st)
	}
	return stops, rows.Err()
}

// ImportInfo returns the metadata of the current generation.
func (s *Store) ImportInfo(ctx context.Context) (map[string]string, error) {
	if _, err := s.generation(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM feed_metadata`)
	if err != nil {
		return nil, fmt.Errorf("import info: %w", err)
	}
	defer rows.Close()

	info := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		info[k] = v
	}
	return info, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStop(row rowScanner) (*gtfs.Stop, error) {
	var st gtfs.Stop
	var locType int
	if err := row.Scan(&st.ID, &st.Name, &st.Lat, &st.Lon, &locType, &st.ParentStation); err != nil {
		return nil, err
	}
	st.LocationType = gtfs.LocationType(locType)
	return &st, nil
}

func dayColumn(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	default:
		return "sunday"
	}
}
