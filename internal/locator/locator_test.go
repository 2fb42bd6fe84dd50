package locator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"goride/internal/geo"
	"goride/internal/gtfs"
	"goride/internal/localtime"
	"goride/internal/storage"
)

func newTestLocator(t *testing.T, ents *gtfs.Entities) *Locator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.Open(":memory:", localtime.NewClock(180), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if ents != nil {
		if _, err := store.ReplaceAll(context.Background(), ents, "test"); err != nil {
			t.Fatal(err)
		}
	}
	return New(store, logger)
}

// hubEntities models the Konak hub: metro, ferry and bus stops a few dozen
// meters apart, plus a distant stop.
func hubEntities() *gtfs.Entities {
	return &gtfs.Entities{
		Stops: []gtfs.Stop{
			{ID: "KON-M", Name: "M1 Konak", Lat: 38.4189, Lon: 27.1287},
			{ID: "KON-F", Name: "Konak İskele", Lat: 38.4180, Lon: 27.1275},
			{ID: "KON-B", Name: "Konak Aktarma", Lat: 38.4186, Lon: 27.1292},
			{ID: "CAN", Name: "Çankaya", Lat: 38.4222, Lon: 27.1360},
			{ID: "FAR", Name: "Bornova", Lat: 38.4700, Lon: 27.2100},
		},
		Routes:    []gtfs.Route{{ID: "R", Color: "1F5F96", TextColor: "FFFFFF"}},
		Trips:     []gtfs.Trip{{ID: "T", RouteID: "R", ServiceID: "S"}},
		StopTimes: []gtfs.StopTime{{TripID: "T", StopID: "KON-M", DepartureMinutes: 600, StopSequence: 1}},
	}
}

func TestFindNearbyStops(t *testing.T) {
	l := newTestLocator(t, hubEntities())
	ctx := context.Background()

	stops, err := l.FindNearbyStops(ctx, 38.4189, 27.1287, 1000, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stops) != 4 {
		t.Fatalf("got %d stops, want 4 (Bornova is ~7 km away)", len(stops))
	}
	for i, s := range stops {
		if s.DistanceMeters > 1000 {
			t.Errorf("stop %s distance %.0f exceeds radius", s.ID, s.DistanceMeters)
		}
		if i > 0 && stops[i-1].DistanceMeters > s.DistanceMeters {
			t.Error("results not sorted ascending by distance")
		}
	}
	if stops[0].ID != "KON-M" || stops[0].DistanceMeters != 0 {
		t.Errorf("nearest = %s at %.0f m, want KON-M at 0", stops[0].ID, stops[0].DistanceMeters)
	}
}

func TestFindNearbyStops_Limit(t *testing.T) {
	l := newTestLocator(t, hubEntities())
	stops, err := l.FindNearbyStops(context.Background(), 38.4189, 27.1287, 1000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(stops) != 2 {
		t.Errorf("got %d stops, want limit 2", len(stops))
	}
}

func TestFindNearbyStops_InvalidCoordinates(t *testing.T) {
	l := newTestLocator(t, hubEntities())
	_, err := l.FindNearbyStops(context.Background(), 91, 0, 1000, 5)
	var qe *geo.QueryError
	if !errors.As(err, &qe) {
		t.Errorf("error = %v, want *geo.QueryError", err)
	}
}

func TestFindNearbyStops_EmptyStore(t *testing.T) {
	l := newTestLocator(t, nil)
	_, err := l.FindNearbyStops(context.Background(), 38.4, 27.1, 1000, 5)
	if !errors.Is(err, storage.ErrNoData) {
		t.Errorf("error = %v, want ErrNoData", err)
	}
}

func TestFindBestNearbyStops_DeduplicatesHub(t *testing.T) {
	l := newTestLocator(t, hubEntities())
	stops, err := l.FindBestNearbyStops(context.Background(), 38.4189, 27.1287, 3, 1000)
	if err != nil {
		t.Fatal(err)
	}
	// The three Konak records collapse to one; no two results share a key.
	keys := map[string]bool{}
	for _, s := range stops {
		key := StationKey(s.Name)
		if keys[key] {
			t.Errorf("duplicate station key %q in results", key)
		}
		keys[key] = true
	}
	if len(stops) != 2 {
		t.Errorf("got %d deduplicated stops, want 2 (konak + cankaya)", len(stops))
	}
	// The nearest record of the hub wins.
	if stops[0].ID != "KON-M" {
		t.Errorf("hub representative = %s, want KON-M", stops[0].ID)
	}
}

func TestExpandToAllSameNameStops(t *testing.T) {
	l := newTestLocator(t, hubEntities())
	ctx := context.Background()

	hubs, err := l.FindBestNearbyStops(ctx, 38.4189, 27.1287, 1, 500)
	if err != nil {
		t.Fatal(err)
	}
	expanded, err := l.ExpandToAllSameNameStops(ctx, 38.4189, 27.1287, hubs)
	if err != nil {
		t.Fatal(err)
	}

	ids := map[string]int{}
	for _, s := range expanded {
		ids[s.ID]++
	}
	for id, n := range ids {
		if n > 1 {
			t.Errorf("stop %s appears %d times after expansion", id, n)
		}
	}
	for _, want := range []string{"KON-M", "KON-F", "KON-B"} {
		if ids[want] == 0 {
			t.Errorf("expansion missing mode-specific stop %s", want)
		}
	}
	// Distances never shrink below the hub's original distance.
	for _, s := range expanded {
		direct := geo.Haversine(38.4189, 27.1287, s.Lat, s.Lon)
		if s.DistanceMeters < direct-0.01 {
			t.Errorf("stop %s distance %.1f below recomputed %.1f", s.ID, s.DistanceMeters, direct)
		}
	}
}

func TestStationKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"M1 Konak", "konak"},
		{"Konak İskele", "konak"},
		{"Konak Aktarma", "konak"},
		{"305 Üçyol", "ucyol"},
		{"Üçyol Metro", "ucyol"},
		{"Fahrettin Altay", "fahrettin altay"},
		{"T2 Halkapınar İstasyonu", "halkapinar"},
	}
	for _, tt := range tests {
		if got := StationKey(tt.in); got != tt.want {
			t.Errorf("StationKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWalkMinutes(t *testing.T) {
	n := NearbyStop{DistanceMeters: 417}
	if got := n.WalkMinutes(); got != 5 {
		t.Errorf("WalkMinutes() = %d, want 5", got)
	}
}
