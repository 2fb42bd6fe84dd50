package planner

import (
	"fmt"
	"strings"
	"time"

	"goride/internal/gtfs"
)

// SegmentKind tags the variants of a journey segment.
type SegmentKind string

const (
	KindWalk    SegmentKind = "walk"
	KindTransit SegmentKind = "transit"
)

// Tags applied to journeys during ranking.
const (
	TagFastest         = "fastest"
	TagFewestTransfers = "fewestTransfers"
)

// Place is an endpoint of a segment: either a stop (ID set) or the rider's
// literal origin/destination point.
type Place struct {
	ID   string  `json:"id,omitempty"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Segment is one leg of a journey, either a walk or a ride on a single trip.
type Segment struct {
	Kind SegmentKind `json:"kind"`
	From Place       `json:"from"`
	To   Place       `json:"to"`

	DepartureTime time.Time     `json:"departureTime"`
	ArrivalTime   time.Time     `json:"arrivalTime"`
	Duration      time.Duration `json:"-"`

	// Walk segments only.
	DistanceMeters float64 `json:"distanceMeters,omitempty"`

	// Transit segments only.
	RouteID           string    `json:"routeId,omitempty"`
	RouteShortName    string    `json:"routeShortName,omitempty"`
	Mode              gtfs.Mode `json:"-"`
	TripID            string    `json:"tripId,omitempty"`
	Headsign          string    `json:"headsign,omitempty"`
	IntermediateStops int       `json:"intermediateStops,omitempty"`
}

// Journey is one ranked itinerary from origin point to destination point.
type Journey struct {
	Segments      []Segment     `json:"segments"`
	DepartureTime time.Time     `json:"departureTime"`
	ArrivalTime   time.Time     `json:"arrivalTime"`
	Duration      time.Duration `json:"-"`
	Transfers     int           `json:"numberOfTransfers"`
	WalkMeters    float64       `json:"totalWalkDistance"`
	Tags          []string      `json:"tags,omitempty"`
}

// transitLegs counts the transit segments.
func (j *Journey) transitLegs() int {
	n := 0
	for _, s := range j.Segments {
		if s.Kind == KindTransit {
			n++
		}
	}
	return n
}

// routeSequence is the ordered route-id key used to deduplicate itineraries
// that ride the same lines.
func (j *Journey) routeSequence() string {
	var ids []string
	for _, s := range j.Segments {
		if s.Kind == KindTransit {
			ids = append(ids, s.RouteID)
		}
	}
	return strings.Join(ids, "|")
}

// finalize recomputes the derived journey fields from its segments.
func (j *Journey) finalize() {
	if len(j.Segments) == 0 {
		return
	}
	j.DepartureTime = j.Segments[0].DepartureTime
	j.ArrivalTime = j.Segments[len(j.Segments)-1].ArrivalTime
	j.Duration = j.ArrivalTime.Sub(j.DepartureTime)
	j.Transfers = max(0, j.transitLegs()-1)
	j.WalkMeters = 0
	for _, s := range j.Segments {
		if s.Kind == KindWalk {
			j.WalkMeters += s.DistanceMeters
		}
	}
}

// NoRouteError is the explicit empty result of a search: not a failure, but
// an explained absence of itineraries.
type NoRouteError struct {
	Reason string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("no itinerary found: %s", e.Reason)
}

// No-route reasons surfaced to callers.
const (
	ReasonNoOriginStops      = "no stops near origin"
	ReasonNoDestinationStops = "no stops near destination"
	ReasonOutsideHours       = "outside service hours"
	ReasonNoConnection       = "no connection within bounds"
)
