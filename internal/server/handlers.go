package server

import (
	"database/sql"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"goride/internal/geo"
	"goride/internal/planner"
	"goride/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

// mapError translates domain errors into HTTP responses. Invalid input is
// 400, a store with no imported feed is 503, anything unexpected is 500.
func (s *Server) mapError(c *fiber.Ctx, err error) error {
	var qe *geo.QueryError
	switch {
	case errors.As(err, &qe):
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: qe.Error()})
	case errors.Is(err, storage.ErrNoData):
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Error: "no schedule data loaded"})
	case errors.Is(err, sql.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "not found"})
	default:
		s.logger.Error("request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal error"})
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{"status": "ok", "hasData": s.store.HasData(c.Context())}
	if info, err := s.store.ImportInfo(c.Context()); err == nil {
		resp["generation"] = info["generation"]
		resp["importedAt"] = info["imported_at"]
	}
	return c.JSON(resp)
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	stop, err := s.store.StopByID(c.Context(), c.Params("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	routes, err := s.store.RoutesByStop(c.Context(), stop.ID)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(stopDetailDTO{
		Stop:   *stop,
		Routes: toRouteDTOs(routes),
	})
}

func (s *Server) handleNearbyStops(c *fiber.Ctx) error {
	if missing := missingParams(c, "lat", "lon"); missing != "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "missing query parameter: " + missing})
	}
	lat := c.QueryFloat("lat")
	lon := c.QueryFloat("lon")
	radius := c.QueryFloat("radius", 500)
	limit := c.QueryInt("limit", 10)

	stops, err := s.locator.FindNearbyStops(c.Context(), lat, lon, radius, limit)
	if err != nil {
		return s.mapError(c, err)
	}
	out := make([]nearbyStopDTO, 0, len(stops))
	for _, st := range stops {
		out = append(out, nearbyStopDTO{
			Stop:           st.Stop,
			DistanceMeters: st.DistanceMeters,
			WalkMinutes:    st.WalkMinutes(),
		})
	}
	return c.JSON(fiber.Map{"stops": out})
}

func (s *Server) handleDepartures(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	from := time.Now()
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "from: expected RFC 3339 timestamp"})
		}
		from = parsed
	}

	deps, err := s.store.NextDepartures(c.Context(), c.Params("id"), limit, from)
	if err != nil {
		return s.mapError(c, err)
	}
	out := make([]departureDTO, 0, len(deps))
	for _, d := range deps {
		out = append(out, toDepartureDTO(d))
	}
	return c.JSON(fiber.Map{"departures": out})
}

func missingParams(c *fiber.Ctx, names ...string) string {
	for _, name := range names {
		if c.Query(name) == "" {
			return name
		}
	}
	return ""
}

func (s *Server) handlePlan(c *fiber.Ctx) error {
	if missing := missingParams(c, "fromLat", "fromLon", "toLat", "toLon"); missing != "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "missing query parameter: " + missing})
	}
	origin := geo.Point{Lat: c.QueryFloat("fromLat"), Lon: c.QueryFloat("fromLon")}
	destination := geo.Point{Lat: c.QueryFloat("toLat"), Lon: c.QueryFloat("toLon")}

	departure := time.Now()
	if raw := c.Query("departure"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "departure: expected RFC 3339 timestamp"})
		}
		departure = parsed
	}

	journeys, err := s.planner.PlanJourney(c.Context(), origin, destination, departure, s.search)
	if err != nil {
		var noRoute *planner.NoRouteError
		if errors.As(err, &noRoute) {
			// An explained empty result is a successful search.
			return c.JSON(planResponse{Journeys: []journeyDTO{}, NoRoute: noRoute.Reason})
		}
		return s.mapError(c, err)
	}

	out := make([]journeyDTO, 0, len(journeys))
	for _, j := range journeys {
		out = append(out, toJourneyDTO(j))
	}
	return c.JSON(planResponse{Journeys: out})
}
