package gtfs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"goride/internal/localtime"
)

// Default substitutions applied when a feed omits an optional field. Applied
// as a pure function during normalization, never at query time.
const (
	DefaultRouteColor     = "1F5F96"
	DefaultRouteTextColor = "FFFFFF"
	DefaultDirectionID    = 0
)

// Normalize coerces raw rows into canonical entities. Rows that fail numeric
// coercion or violate entity invariants are rejected and recorded, never
// clamped or silently fixed. Trips whose stop sequence is not strictly
// increasing are dropped whole.
func Normalize(feed *Feed) (*Entities, []ParseError) {
	ents := &Entities{}
	var errs []ParseError

	for i, row := range feed.Stops {
		lat, err := strconv.ParseFloat(row.StopLat, 64)
		if err != nil {
			errs = append(errs, rowError("stops.txt", i, "non-numeric stop_lat %q", row.StopLat))
			continue
		}
		lon, err := strconv.ParseFloat(row.StopLon, 64)
		if err != nil {
			errs = append(errs, rowError("stops.txt", i, "non-numeric stop_lon %q", row.StopLon))
			continue
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			errs = append(errs, rowError("stops.txt", i, "coordinates out of range (%f, %f)", lat, lon))
			continue
		}
		locType := LocationStop
		if row.LocationType == "1" {
			locType = LocationStation
		}
		ents.Stops = append(ents.Stops, Stop{
			ID:            row.StopID,
			Name:          row.StopName,
			Lat:           lat,
			Lon:           lon,
			LocationType:  locType,
			ParentStation: row.ParentStation,
		})
	}

	for i, row := range feed.Routes {
		mode, ok := parseMode(row.RouteType)
		if !ok {
			errs = append(errs, rowError("routes.txt", i, "unsupported route_type %q", row.RouteType))
			continue
		}
		ents.Routes = append(ents.Routes, Route{
			ID:        row.RouteID,
			ShortName: row.RouteShortName,
			LongName:  row.RouteLongName,
			Mode:      mode,
			Color:     defaultColor(row.RouteColor, DefaultRouteColor),
			TextColor: defaultColor(row.RouteTextColor, DefaultRouteTextColor),
		})
	}

	for i, row := range feed.Trips {
		dir := DefaultDirectionID
		if row.DirectionID != "" {
			d, err := strconv.Atoi(row.DirectionID)
			if err != nil || (d != 0 && d != 1) {
				errs = append(errs, rowError("trips.txt", i, "direction_id %q not in {0,1}", row.DirectionID))
				continue
			}
			dir = d
		}
		ents.Trips = append(ents.Trips, Trip{
			ID:          row.TripID,
			RouteID:     row.RouteID,
			ServiceID:   row.ServiceID,
			Headsign:    row.TripHeadsign,
			DirectionID: dir,
		})
	}

	byTrip := make(map[string][]StopTime)
	for i, row := range feed.StopTimes {
		dep, err := localtime.ParseServiceTime(row.DepartureTime)
		if err != nil {
			errs = append(errs, rowError("stop_times.txt", i, "bad departure_time: %v", err))
			continue
		}
		arr := dep
		if row.ArrivalTime != "" {
			if arr, err = localtime.ParseServiceTime(row.ArrivalTime); err != nil {
				errs = append(errs, rowError("stop_times.txt", i, "bad arrival_time: %v", err))
				continue
			}
		}
		seq, err := strconv.Atoi(row.StopSequence)
		if err != nil {
			errs = append(errs, rowError("stop_times.txt", i, "non-numeric stop_sequence %q", row.StopSequence))
			continue
		}
		byTrip[row.TripID] = append(byTrip[row.TripID], StopTime{
			TripID:           row.TripID,
			StopID:           row.StopID,
			ArrivalMinutes:   arr,
			DepartureMinutes: dep,
			StopSequence:     seq,
		})
	}

	// Order trips deterministically before flattening stop times.
	tripIDs := make([]string, 0, len(byTrip))
	for id := range byTrip {
		tripIDs = append(tripIDs, id)
	}
	sort.Strings(tripIDs)
	for _, id := range tripIDs {
		times := byTrip[id]
		sort.Slice(times, func(a, b int) bool { return times[a].StopSequence < times[b].StopSequence })
		if !strictlyIncreasing(times) {
			errs = append(errs, ParseError{
				File:   "stop_times.txt",
				Reason: fmt.Sprintf("trip %s: stop_sequence not strictly increasing, trip dropped", id),
			})
			continue
		}
		ents.StopTimes = append(ents.StopTimes, times...)
	}

	for i, row := range feed.Calendar {
		svc := Service{ID: row.ServiceID, StartDate: row.StartDate, EndDate: row.EndDate}
		days := []struct {
			val string
			idx int // time.Weekday index, Sunday = 0
		}{
			{row.Sunday, 0}, {row.Monday, 1}, {row.Tuesday, 2}, {row.Wednesday, 3},
			{row.Thursday, 4}, {row.Friday, 5}, {row.Saturday, 6},
		}
		bad := false
		for _, d := range days {
			switch d.val {
			case "1":
				svc.Weekdays[d.idx] = true
			case "", "0":
			default:
				errs = append(errs, rowError("calendar.txt", i, "weekday flag %q not in {0,1}", d.val))
				bad = true
			}
			if bad {
				break
			}
		}
		if !bad {
			ents.Services = append(ents.Services, svc)
		}
	}

	for i, row := range feed.CalendarDates {
		switch row.ExceptionType {
		case "1", "2":
			ents.Exceptions = append(ents.Exceptions, ServiceException{
				ServiceID: row.ServiceID,
				Date:      row.Date,
				Added:     row.ExceptionType == "1",
			})
		default:
			errs = append(errs, rowError("calendar_dates.txt", i, "exception_type %q not in {1,2}", row.ExceptionType))
		}
	}

	return ents, errs
}

// ValidationReport is the advisory result of Validate. Callers decide whether
// to proceed on partial validity.
type ValidationReport struct {
	Valid  bool
	Errors []string
}

// Validate checks required collections and referential integrity. It never
// mutates the entities.
func Validate(ents *Entities) ValidationReport {
	var report ValidationReport

	if len(ents.Stops) == 0 {
		report.Errors = append(report.Errors, "no stops")
	}
	if len(ents.Routes) == 0 {
		report.Errors = append(report.Errors, "no routes")
	}
	if len(ents.Trips) == 0 {
		report.Errors = append(report.Errors, "no trips")
	}
	if len(ents.StopTimes) == 0 {
		report.Errors = append(report.Errors, "no stop times")
	}

	for _, s := range ents.Stops {
		if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 {
			report.Errors = append(report.Errors,
				fmt.Sprintf("stop %s: coordinates out of range", s.ID))
		}
	}

	routeIDs := make(map[string]bool, len(ents.Routes))
	for _, r := range ents.Routes {
		routeIDs[r.ID] = true
	}
	stopIDs := make(map[string]bool, len(ents.Stops))
	for _, s := range ents.Stops {
		stopIDs[s.ID] = true
	}
	tripIDs := make(map[string]bool, len(ents.Trips))
	danglingTrips := 0
	for _, t := range ents.Trips {
		tripIDs[t.ID] = true
		if !routeIDs[t.RouteID] {
			danglingTrips++
		}
	}
	if danglingTrips > 0 {
		report.Errors = append(report.Errors,
			fmt.Sprintf("%d trips reference unknown routes", danglingTrips))
	}
	danglingTimes := 0
	for _, st := range ents.StopTimes {
		if !tripIDs[st.TripID] || !stopIDs[st.StopID] {
			danglingTimes++
		}
	}
	if danglingTimes > 0 {
		report.Errors = append(report.Errors,
			fmt.Sprintf("%d stop times reference unknown trips or stops", danglingTimes))
	}

	report.Valid = len(report.Errors) == 0
	return report
}

// NormalizeName folds a stop name for accent- and case-insensitive matching:
// diacritics stripped, lowercased, whitespace collapsed.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	// Dotless ı survives NFD folding; map it so Turkish names compare equal.
	folded = strings.ReplaceAll(folded, "ı", "i")
	return strings.Join(strings.Fields(folded), " ")
}

func strictlyIncreasing(times []StopTime) bool {
	for i := 1; i < len(times); i++ {
		if times[i].StopSequence <= times[i-1].StopSequence {
			return false
		}
	}
	return true
}

func parseMode(routeType string) (Mode, bool) {
	switch routeType {
	case "0":
		return ModeTram, true
	case "1":
		return ModeMetro, true
	case "2":
		return ModeCommuterRail, true
	case "3":
		return ModeBus, true
	case "4":
		return ModeFerry, true
	default:
		return ModeBus, false
	}
}

func defaultColor(v, fallback string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "#")
	if len(v) != 6 {
		return fallback
	}
	for _, r := range v {
		if !unicode.Is(unicode.ASCII_Hex_Digit, r) {
			return fallback
		}
	}
	return strings.ToUpper(v)
}

func rowError(file string, rowIdx int, format string, args ...any) ParseError {
	return ParseError{
		File:   file,
		Line:   rowIdx + 2, // rows follow the header
		Reason: fmt.Sprintf(format, args...),
	}
}
