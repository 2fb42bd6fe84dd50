package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"goride/internal/gtfs"
	"goride/internal/localtime"
	"goride/internal/locator"
	"goride/internal/metrics"
	"goride/internal/planner"
	"goride/internal/storage"
)

func newTestServer(t *testing.T, withData bool) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := localtime.NewClock(180)

	store, err := storage.Open(":memory:", clock, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if withData {
		ents, err := gtfs.GenerateFallback(gtfs.DefaultFallbackLines)
		if err != nil {
			t.Fatalf("generate fallback: %v", err)
		}
		if _, err := store.ReplaceAll(context.Background(), ents, "test"); err != nil {
			t.Fatalf("replace all: %v", err)
		}
	}

	loc := locator.New(store, logger)
	collector := metrics.NewCollector()
	pl := planner.New(store, loc, logger, collector)
	return New(store, loc, pl, collector, logger, planner.DefaultOptions())
}

func get(t *testing.T, s *Server, url string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	resp, err := s.app.Test(req, 30000)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp, body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, true)
	resp, body := get(t, s, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["hasData"] != true {
		t.Errorf("hasData = %v, want true", out["hasData"])
	}
	if out["generation"] == "" {
		t.Error("expected a generation id")
	}
}

func TestNearbyStops(t *testing.T) {
	s := newTestServer(t, true)
	resp, body := get(t, s, "/v1/stops/nearby?lat=38.4189&lon=27.1287&radius=300&limit=5")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, body)
	}
	var out struct {
		Stops []nearbyStopDTO `json:"stops"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Stops) == 0 {
		t.Fatal("expected stops near Konak")
	}
	if out.Stops[0].ID != "M1-KON" {
		t.Errorf("nearest = %s, want M1-KON", out.Stops[0].ID)
	}
}

func TestNearbyStopsMissingParam(t *testing.T) {
	s := newTestServer(t, true)
	resp, _ := get(t, s, "/v1/stops/nearby?lat=38.4189")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStopDetail(t *testing.T) {
	s := newTestServer(t, true)
	resp, body := get(t, s, "/v1/stops/M1-KON")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, body)
	}
	var out stopDetailDTO
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Stop.Name != "Konak" {
		t.Errorf("name = %q, want Konak", out.Stop.Name)
	}
	if len(out.Routes) == 0 || out.Routes[0].Mode != "metro" {
		t.Errorf("routes = %+v, want the metro line", out.Routes)
	}
}

func TestStopNotFound(t *testing.T) {
	s := newTestServer(t, true)
	resp, _ := get(t, s, "/v1/stops/NOPE")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDepartures(t *testing.T) {
	s := newTestServer(t, true)
	resp, body := get(t, s, "/v1/stops/M1-FAL/departures?limit=3&from=2025-03-10T08:00:00%2B03:00")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, body)
	}
	var out struct {
		Departures []departureDTO `json:"departures"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Departures) != 3 {
		t.Fatalf("got %d departures, want 3", len(out.Departures))
	}
	if out.Departures[0].RouteShortName != "M1" {
		t.Errorf("route = %q, want M1", out.Departures[0].RouteShortName)
	}
}

func TestPlan(t *testing.T) {
	s := newTestServer(t, true)
	resp, body := get(t, s,
		"/v1/plan?fromLat=38.3954&fromLon=27.0730&toLat=38.4189&toLon=27.1287&departure=2025-03-10T08:00:00%2B03:00")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, body)
	}
	var out planResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Journeys) == 0 {
		t.Fatalf("expected itineraries, got noRoute=%q", out.NoRoute)
	}
	best := out.Journeys[0]
	if best.Transfers != 0 {
		t.Errorf("transfers = %d, want 0", best.Transfers)
	}
	if best.DurationMinutes < 10 || best.DurationMinutes > 15 {
		t.Errorf("duration = %d minutes, want 10-15", best.DurationMinutes)
	}
}

func TestPlanNoRouteIsSuccess(t *testing.T) {
	s := newTestServer(t, true)
	// Valid coordinates far from every stop in the network.
	resp, body := get(t, s,
		"/v1/plan?fromLat=39.5000&fromLon=28.5000&toLat=39.6000&toLon=28.6000&departure=2025-03-10T08:00:00%2B03:00")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, body)
	}
	var out planResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Journeys) != 0 {
		t.Errorf("got %d itineraries, want 0", len(out.Journeys))
	}
	if out.NoRoute == "" {
		t.Error("expected an explicit no-route reason")
	}
}

func TestPlanInvalidCoordinates(t *testing.T) {
	s := newTestServer(t, true)
	resp, _ := get(t, s, "/v1/plan?fromLat=95&fromLon=27.1&toLat=38.42&toLon=27.13")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestEmptyStoreIsUnavailable(t *testing.T) {
	s := newTestServer(t, false)
	resp, _ := get(t, s, "/v1/stops/nearby?lat=38.4189&lon=27.1287")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, true)
	resp, body := get(t, s, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(body) == 0 {
		t.Error("expected metrics exposition output")
	}
}
