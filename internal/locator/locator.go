// Package locator finds boardable stops near arbitrary coordinates and
// collapses multimodal hubs, where one physical station registers a separate
// stop record per mode, into single candidates.
package locator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"goride/internal/geo"
	"goride/internal/gtfs"
	"goride/internal/storage"
)

// overFetchFactor is how many stops beyond the requested count
// FindBestNearbyStops pulls before hub deduplication.
const overFetchFactor = 5

// NearbyStop is a stop with its computed distance from a query point. It is
// an ephemeral per-query value, never persisted.
type NearbyStop struct {
	gtfs.Stop
	DistanceMeters float64 `json:"distanceMeters"`
}

// WalkMinutes is the walking time from the query point to this stop.
func (n NearbyStop) WalkMinutes() int {
	return geo.WalkMinutes(n.DistanceMeters)
}

// Locator performs geospatial stop searches on top of the schedule store.
type Locator struct {
	store  *storage.Store
	logger *slog.Logger
}

func New(store *storage.Store, logger *slog.Logger) *Locator {
	return &Locator{store: store, logger: logger}
}

// FindNearbyStops returns stops within radiusMeters of the point, ascending
// by great-circle distance, at most limit. The store is queried with an
// approximate bounding box and candidates are refined with exact distances.
func (l *Locator) FindNearbyStops(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]NearbyStop, error) {
	point := geo.Point{Lat: lat, Lon: lon}
	if err := point.Validate(); err != nil {
		return nil, err
	}

	latDeg, lonDeg := geo.BoundingBoxRadius(lat, radiusMeters)
	stops, err := l.store.StopsInBox(ctx, lat-latDeg, lat+latDeg, lon-lonDeg, lon+lonDeg, limit*overFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("nearby box query: %w", err)
	}

	var nearby []NearbyStop
	for _, st := range stops {
		dist := geo.Haversine(lat, lon, st.Lat, st.Lon)
		if dist > radiusMeters {
			continue
		}
		nearby = append(nearby, NearbyStop{Stop: st, DistanceMeters: dist})
	}
	sortNearby(nearby)
	if len(nearby) > limit {
		nearby = nearby[:limit]
	}
	return nearby, nil
}

// FindBestNearbyStops returns up to count stops, one per physical hub: it
// over-fetches, groups candidates by normalized station key and keeps the
// nearest stop of each group.
func (l *Locator) FindBestNearbyStops(ctx context.Context, lat, lon float64, count int, radiusMeters float64) ([]NearbyStop, error) {
	candidates, err := l.FindNearbyStops(ctx, lat, lon, radiusMeters, count*overFetchFactor)
	if err != nil {
		return nil, err
	}

	best := make(map[string]NearbyStop)
	var order []string
	for _, c := range candidates {
		key := StationKey(c.Name)
		existing, seen := best[key]
		if !seen {
			best[key] = c
			order = append(order, key)
			continue
		}
		if c.DistanceMeters < existing.DistanceMeters {
			best[key] = c
		}
	}

	deduped := make([]NearbyStop, 0, len(order))
	for _, key := range order {
		deduped = append(deduped, best[key])
	}
	sortNearby(deduped)
	if len(deduped) > count {
		deduped = deduped[:count]
	}
	return deduped, nil
}

// ExpandToAllSameNameStops re-expands deduplicated hubs to every mode-specific
// stop record at the same physical location. Results are deduplicated by stop
// id; a stop reachable through two hubs keeps the larger distance so walking
// time is never underestimated.
func (l *Locator) ExpandToAllSameNameStops(ctx context.Context, lat, lon float64, stops []NearbyStop) ([]NearbyStop, error) {
	seen := make(map[string]int) // stop id -> index in out
	var out []NearbyStop

	for _, hub := range stops {
		siblings, err := l.store.StopsWithSameName(ctx, hub.Name, hub.Lat, hub.Lon)
		if err != nil {
			return nil, fmt.Errorf("expand hub %s: %w", hub.ID, err)
		}
		for _, sib := range siblings {
			dist := geo.Haversine(lat, lon, sib.Lat, sib.Lon)
			if dist < hub.DistanceMeters {
				dist = hub.DistanceMeters
			}
			if idx, ok := seen[sib.ID]; ok {
				if dist > out[idx].DistanceMeters {
					out[idx].DistanceMeters = dist
				}
				continue
			}
			seen[sib.ID] = len(out)
			out = append(out, NearbyStop{Stop: sib, DistanceMeters: dist})
		}
	}
	sortNearby(out)
	return out, nil
}

// StationKey reduces a stop name to a key identifying its physical station:
// leading line-number or mode prefixes stripped, diacritics folded,
// lowercased.
func StationKey(name string) string {
	normalized := gtfs.NormalizeName(name)
	fields := strings.Fields(normalized)

	// Drop leading tokens that are line designators ("m1", "t2", "305") or
	// bare mode words rather than part of the place name.
	for len(fields) > 1 {
		if isLineDesignator(fields[0]) || isModeWord(fields[0]) {
			fields = fields[1:]
			continue
		}
		break
	}
	// Drop trailing mode words ("konak metro", "konak iskele").
	for len(fields) > 1 && isModeWord(fields[len(fields)-1]) {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

func isLineDesignator(token string) bool {
	if token == "" {
		return false
	}
	rest := token
	if rest[0] == 'm' || rest[0] == 't' || rest[0] == 'f' || rest[0] == 'b' {
		rest = rest[1:]
	}
	if rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isModeWord(token string) bool {
	switch token {
	case "metro", "tramvay", "tram", "iskele", "iskelesi", "ferry",
		"aktarma", "istasyon", "istasyonu", "gar", "otobus", "bus", "station":
		return true
	}
	return false
}

func sortNearby(stops []NearbyStop) {
	sort.Slice(stops, func(i, j int) bool {
		if stops[i].DistanceMeters != stops[j].DistanceMeters {
			return stops[i].DistanceMeters < stops[j].DistanceMeters
		}
		return stops[i].ID < stops[j].ID
	})
}
