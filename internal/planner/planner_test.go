package planner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"goride/internal/geo"
	"goride/internal/gtfs"
	"goride/internal/localtime"
	"goride/internal/locator"
	"goride/internal/storage"
)

// 2025-03-10 is a Monday. The agency clock runs at UTC+3, so local h:m on
// that Monday is h-3:m UTC.
func mondayAt(t *testing.T, h, m int) time.Time {
	t.Helper()
	return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC).Add(-3 * time.Hour)
}

func newTestPlanner(t *testing.T, lines []gtfs.FallbackLine) *Planner {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := localtime.NewClock(180)

	store, err := storage.Open(":memory:", clock, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ents, err := gtfs.GenerateFallback(lines)
	if err != nil {
		t.Fatalf("generate fallback: %v", err)
	}
	if _, err := store.ReplaceAll(context.Background(), ents, "test"); err != nil {
		t.Fatalf("replace all: %v", err)
	}

	return New(store, locator.New(store, logger), logger, nil)
}

func TestPlanJourneyDirectMetro(t *testing.T) {
	p := newTestPlanner(t, gtfs.DefaultFallbackLines)

	origin := geo.Point{Lat: 38.3954, Lon: 27.0730}      // Fahrettin Altay
	destination := geo.Point{Lat: 38.4189, Lon: 27.1287} // Konak

	journeys, err := p.PlanJourney(context.Background(), origin, destination, mondayAt(t, 8, 0), Options{})
	if err != nil {
		t.Fatalf("PlanJourney: %v", err)
	}
	if len(journeys) == 0 {
		t.Fatal("expected at least one itinerary")
	}

	best := journeys[0]
	if best.Transfers != 0 {
		t.Errorf("best itinerary transfers = %d, want 0", best.Transfers)
	}
	if got := best.transitLegs(); got != 1 {
		t.Fatalf("best itinerary transit legs = %d, want 1", got)
	}
	var transit Segment
	for _, s := range best.Segments {
		if s.Kind == KindTransit {
			transit = s
		}
	}
	if transit.Mode != gtfs.ModeMetro {
		t.Errorf("mode = %v, want metro", transit.Mode)
	}
	if transit.RouteShortName != "M1" {
		t.Errorf("route = %q, want M1", transit.RouteShortName)
	}
	if best.Duration < 10*time.Minute || best.Duration > 15*time.Minute {
		t.Errorf("duration = %v, want between 10m and 15m", best.Duration)
	}
	if !best.DepartureTime.Before(best.ArrivalTime) {
		t.Errorf("departure %v not before arrival %v", best.DepartureTime, best.ArrivalTime)
	}

	tagged := false
	for _, j := range journeys {
		for _, tag := range j.Tags {
			if tag == TagFastest {
				tagged = true
			}
		}
	}
	if !tagged {
		t.Error("no itinerary tagged fastest")
	}
}

func TestPlanJourneyNightLineAtMidday(t *testing.T) {
	nightLine := []gtfs.FallbackLine{{
		RouteID:    "N1",
		ShortName:  "N1",
		LongName:   "Night Shuttle",
		Mode:       gtfs.ModeBus,
		Stops: []gtfs.FallbackStop{
			{ID: "N1-A", Name: "Night A", Lat: 38.4000, Lon: 27.1000},
			{ID: "N1-B", Name: "Night B", Lat: 38.4030, Lon: 27.1000},
		},
		First:      "00:10",
		Last:       "04:50",
		HeadwayMin: 20,
		HopMinutes: 3,
	}}
	p := newTestPlanner(t, nightLine)

	origin := geo.Point{Lat: 38.4000, Lon: 27.1000}
	destination := geo.Point{Lat: 38.4030, Lon: 27.1000}

	journeys, err := p.PlanJourney(context.Background(), origin, destination, mondayAt(t, 14, 0), Options{})
	if err != nil {
		t.Fatalf("PlanJourney: %v", err)
	}
	if len(journeys) == 0 {
		t.Fatal("expected the pure-walk itinerary")
	}
	for _, j := range journeys {
		if got := j.transitLegs(); got != 0 {
			t.Errorf("itinerary has %d transit legs outside service hours, want 0", got)
		}
	}
}

func TestPlanJourneyNightLineNoWalkFallback(t *testing.T) {
	nightLine := []gtfs.FallbackLine{{
		RouteID:    "N2",
		ShortName:  "N2",
		LongName:   "Long Night Shuttle",
		Mode:       gtfs.ModeBus,
		Stops: []gtfs.FallbackStop{
			{ID: "N2-A", Name: "Far Night A", Lat: 38.3000, Lon: 27.0000},
			{ID: "N2-B", Name: "Far Night B", Lat: 38.3600, Lon: 27.0000},
		},
		First:      "00:10",
		Last:       "04:50",
		HeadwayMin: 20,
		HopMinutes: 10,
	}}
	p := newTestPlanner(t, nightLine)

	origin := geo.Point{Lat: 38.3000, Lon: 27.0000}
	destination := geo.Point{Lat: 38.3600, Lon: 27.0000}

	_, err := p.PlanJourney(context.Background(), origin, destination, mondayAt(t, 14, 0), Options{})
	var noRoute *NoRouteError
	if !errors.As(err, &noRoute) {
		t.Fatalf("err = %v, want *NoRouteError", err)
	}
	if noRoute.Reason != ReasonOutsideHours {
		t.Errorf("reason = %q, want %q", noRoute.Reason, ReasonOutsideHours)
	}
}

func TestPlanJourneyDisconnectedNetworks(t *testing.T) {
	lines := []gtfs.FallbackLine{
		{
			RouteID:   "A",
			ShortName: "A",
			Mode:      gtfs.ModeBus,
			Stops: []gtfs.FallbackStop{
				{ID: "A1", Name: "West One", Lat: 38.4000, Lon: 27.0000},
				{ID: "A2", Name: "West Two", Lat: 38.4050, Lon: 27.0000},
			},
			First: "06:00", Last: "23:00", HeadwayMin: 10, HopMinutes: 4,
		},
		{
			RouteID:   "B",
			ShortName: "B",
			Mode:      gtfs.ModeBus,
			Stops: []gtfs.FallbackStop{
				{ID: "B1", Name: "East One", Lat: 38.4400, Lon: 27.0400},
				{ID: "B2", Name: "East Two", Lat: 38.4450, Lon: 27.0400},
			},
			First: "06:00", Last: "23:00", HeadwayMin: 10, HopMinutes: 4,
		},
	}
	p := newTestPlanner(t, lines)

	origin := geo.Point{Lat: 38.4000, Lon: 27.0000}
	destination := geo.Point{Lat: 38.4400, Lon: 27.0400}

	_, err := p.PlanJourney(context.Background(), origin, destination, mondayAt(t, 14, 0), Options{})
	var noRoute *NoRouteError
	if !errors.As(err, &noRoute) {
		t.Fatalf("err = %v, want *NoRouteError", err)
	}
	if noRoute.Reason != ReasonNoConnection {
		t.Errorf("reason = %q, want %q", noRoute.Reason, ReasonNoConnection)
	}
}

func transferLines() []gtfs.FallbackLine {
	return []gtfs.FallbackLine{
		{
			RouteID:   "L1",
			ShortName: "L1",
			Mode:      gtfs.ModeTram,
			Stops: []gtfs.FallbackStop{
				{ID: "S1", Name: "Harbor", Lat: 38.4000, Lon: 27.0500},
				{ID: "S2", Name: "Market", Lat: 38.4000, Lon: 27.0600},
				{ID: "S3", Name: "Junction", Lat: 38.4000, Lon: 27.0700},
			},
			First: "06:00", Last: "23:00", HeadwayMin: 10, HopMinutes: 3,
		},
		{
			RouteID:   "L2",
			ShortName: "L2",
			Mode:      gtfs.ModeBus,
			Stops: []gtfs.FallbackStop{
				{ID: "T1", Name: "Junction North", Lat: 38.4005, Lon: 27.0702},
				{ID: "T2", Name: "Hillside", Lat: 38.4100, Lon: 27.0700},
				{ID: "T3", Name: "Summit", Lat: 38.4200, Lon: 27.0700},
			},
			First: "06:00", Last: "23:00", HeadwayMin: 10, HopMinutes: 3,
		},
	}
}

func TestPlanJourneyWithTransfer(t *testing.T) {
	p := newTestPlanner(t, transferLines())

	origin := geo.Point{Lat: 38.4000, Lon: 27.0500}      // Harbor
	destination := geo.Point{Lat: 38.4200, Lon: 27.0700} // Summit

	journeys, err := p.PlanJourney(context.Background(), origin, destination, mondayAt(t, 8, 0), Options{})
	if err != nil {
		t.Fatalf("PlanJourney: %v", err)
	}
	if len(journeys) == 0 {
		t.Fatal("expected at least one itinerary")
	}

	best := journeys[0]
	if best.Transfers != 1 {
		t.Errorf("transfers = %d, want 1", best.Transfers)
	}
	if got := best.routeSequence(); got != "L1|L2" {
		t.Errorf("route sequence = %q, want L1|L2", got)
	}
	if best.WalkMeters <= 0 {
		t.Error("expected a transfer walk with positive distance")
	}
	for i := 1; i < len(best.Segments); i++ {
		if best.Segments[i].DepartureTime.Before(best.Segments[i-1].ArrivalTime) {
			t.Errorf("segment %d departs %v before previous arrival %v",
				i, best.Segments[i].DepartureTime, best.Segments[i-1].ArrivalTime)
		}
	}
}

func TestPlanJourneyDeterministic(t *testing.T) {
	p := newTestPlanner(t, transferLines())

	origin := geo.Point{Lat: 38.4000, Lon: 27.0500}
	destination := geo.Point{Lat: 38.4200, Lon: 27.0700}
	departure := mondayAt(t, 8, 0)

	type fingerprint struct {
		routes   string
		arrival  time.Time
		segments int
	}
	var first []fingerprint
	for run := 0; run < 5; run++ {
		journeys, err := p.PlanJourney(context.Background(), origin, destination, departure, Options{})
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		var got []fingerprint
		for _, j := range journeys {
			got = append(got, fingerprint{j.routeSequence(), j.ArrivalTime, len(j.Segments)})
		}
		if run == 0 {
			first = got
			continue
		}
		if len(got) != len(first) {
			t.Fatalf("run %d returned %d itineraries, first run returned %d", run, len(got), len(first))
		}
		for i := range got {
			if got[i] != first[i] {
				t.Errorf("run %d itinerary %d = %+v, first run had %+v", run, i, got[i], first[i])
			}
		}
	}
}

func TestPlanJourneyInvalidCoordinates(t *testing.T) {
	p := newTestPlanner(t, gtfs.DefaultFallbackLines)

	_, err := p.PlanJourney(context.Background(),
		geo.Point{Lat: 95, Lon: 27.1}, geo.Point{Lat: 38.42, Lon: 27.13}, mondayAt(t, 8, 0), Options{})
	var qe *geo.QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v, want *geo.QueryError", err)
	}
}

func TestPlanJourneyEmptyStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.Open(":memory:", localtime.NewClock(180), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	p := New(store, locator.New(store, logger), logger, nil)

	_, err = p.PlanJourney(context.Background(),
		geo.Point{Lat: 38.40, Lon: 27.05}, geo.Point{Lat: 38.42, Lon: 27.13}, mondayAt(t, 8, 0), Options{})
	if !errors.Is(err, storage.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}
