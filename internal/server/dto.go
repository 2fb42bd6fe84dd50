package server

import (
	"time"

	"goride/internal/gtfs"
	"goride/internal/planner"
	"goride/internal/storage"
)

// routeDTO renders the mode as its name instead of the numeric code.
type routeDTO struct {
	gtfs.Route
	Mode string `json:"mode"`
}

func toRouteDTOs(routes []gtfs.Route) []routeDTO {
	out := make([]routeDTO, 0, len(routes))
	for _, r := range routes {
		out = append(out, routeDTO{Route: r, Mode: r.Mode.String()})
	}
	return out
}

type stopDetailDTO struct {
	Stop   gtfs.Stop  `json:"stop"`
	Routes []routeDTO `json:"routes"`
}

type nearbyStopDTO struct {
	gtfs.Stop
	DistanceMeters float64 `json:"distanceMeters"`
	WalkMinutes    int     `json:"walkMinutes"`
}

type departureDTO struct {
	TripID         string    `json:"tripId"`
	RouteID        string    `json:"routeId"`
	RouteShortName string    `json:"routeShortName"`
	Mode           string    `json:"mode"`
	Headsign       string    `json:"headsign"`
	Time           time.Time `json:"time"`
}

func toDepartureDTO(d storage.Departure) departureDTO {
	return departureDTO{
		TripID:         d.TripID,
		RouteID:        d.RouteID,
		RouteShortName: d.RouteShortName,
		Mode:           d.Mode.String(),
		Headsign:       d.Headsign,
		Time:           d.Time,
	}
}

type segmentDTO struct {
	planner.Segment
	Mode            string `json:"mode,omitempty"`
	DurationMinutes int    `json:"durationMinutes"`
}

type journeyDTO struct {
	planner.Journey
	Segments        []segmentDTO `json:"segments"`
	DurationMinutes int          `json:"durationMinutes"`
}

func toJourneyDTO(j planner.Journey) journeyDTO {
	segments := make([]segmentDTO, 0, len(j.Segments))
	for _, s := range j.Segments {
		dto := segmentDTO{
			Segment:         s,
			DurationMinutes: int(s.Duration.Minutes()),
		}
		if s.Kind == planner.KindTransit {
			dto.Mode = s.Mode.String()
		}
		segments = append(segments, dto)
	}
	return journeyDTO{
		Journey:         j,
		Segments:        segments,
		DurationMinutes: int(j.Duration.Minutes()),
	}
}

type planResponse struct {
	Journeys []journeyDTO `json:"journeys"`
	NoRoute  string       `json:"noRoute,omitempty"`
}
