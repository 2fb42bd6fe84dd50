// Package planner computes ranked walk+transit itineraries between two
// geographic points for a requested departure instant. The search is a
// bounded, time-dependent earliest-arrival expansion: termination is
// guaranteed by fixed round and frontier ceilings, not by network shape.
package planner

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"goride/internal/geo"
	"goride/internal/gtfs"
	"goride/internal/locator"
	"goride/internal/metrics"
	"goride/internal/storage"
)

// Options bound a single search. Zero values fall back to defaults.
type Options struct {
	// WalkCeilingMeters is the longest acceptable pure walk; a direct
	// origin-destination walk within it becomes a candidate itinerary.
	WalkCeilingMeters float64
	// SearchRadiusMeters bounds the candidate stop search around the origin
	// and destination points.
	SearchRadiusMeters float64
	// TransferRadiusMeters is how far the rider walks between stops at a
	// transfer.
	TransferRadiusMeters float64
	// CandidateStops caps deduplicated candidate hubs per endpoint.
	CandidateStops int
	// MaxRounds caps transit legs per itinerary: 1 boarding + (MaxRounds-1)
	// transfers.
	MaxRounds int
	// MaxBoardingsPerRound caps the exploration frontier of each round.
	MaxBoardingsPerRound int
	// DeparturesPerStop is how many boarding options each stop contributes.
	DeparturesPerStop int
	// MaxResults caps the returned itinerary list.
	MaxResults int
}

// DefaultOptions are the documented engine defaults. The transfer radius and
// round limit are deliberate tuning choices: 200 m is under three minutes of
// walking, and three rounds covers two transfers.
func DefaultOptions() Options {
	return Options{
		WalkCeilingMeters:    2500,
		SearchRadiusMeters:   1500,
		TransferRadiusMeters: 200,
		CandidateStops:       6,
		MaxRounds:            3,
		MaxBoardingsPerRound: 64,
		DeparturesPerStop:    4,
		MaxResults:           5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WalkCeilingMeters <= 0 {
		o.WalkCeilingMeters = d.WalkCeilingMeters
	}
	if o.SearchRadiusMeters <= 0 {
		o.SearchRadiusMeters = d.SearchRadiusMeters
	}
	if o.TransferRadiusMeters <= 0 {
		o.TransferRadiusMeters = d.TransferRadiusMeters
	}
	if o.CandidateStops <= 0 {
		o.CandidateStops = d.CandidateStops
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = d.MaxRounds
	}
	if o.MaxBoardingsPerRound <= 0 {
		o.MaxBoardingsPerRound = d.MaxBoardingsPerRound
	}
	if o.DeparturesPerStop <= 0 {
		o.DeparturesPerStop = d.DeparturesPerStop
	}
	if o.MaxResults <= 0 {
		o.MaxResults = d.MaxResults
	}
	return o
}

// searchWorkers bounds the parallel fan-out within one round.
const searchWorkers = 8

// Planner is the itinerary search engine. It is stateless across searches;
// every search runs against whichever store generation is current when it
// starts.
type Planner struct {
	store   *storage.Store
	locator *locator.Locator
	logger  *slog.Logger
	metrics *metrics.Collector // may be nil
}

func New(store *storage.Store, loc *locator.Locator, logger *slog.Logger, collector *metrics.Collector) *Planner {
	return &Planner{
		store:   store,
		locator: loc,
		logger:  logger,
		metrics: collector,
	}
}

// boarding is one frontier entry: a concrete departure the rider can make,
// with the journey prefix that gets them there.
type boarding struct {
	dep        storage.Departure
	boardStop  gtfs.Stop
	segments   []Segment
	usedRoutes map[string]bool
}

// PlanJourney resolves both endpoints to candidate stops and runs the
// bounded multi-round search. It returns ranked itineraries, or a
// *NoRouteError explaining the empty result.
func (p *Planner) PlanJourney(ctx context.Context, origin, destination geo.Point, departure time.Time, opts Options) ([]Journey, error) {
	opts = opts.withDefaults()
	start := time.Now()
	searchID := uuid.NewString()[:8]
	log := p.logger.With("search", searchID)

	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if err := destination.Validate(); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.Searches.Inc()
		defer func() {
			p.metrics.SearchDuration.Observe(time.Since(start).Seconds())
		}()
	}

	journeys, err := p.search(ctx, log, origin, destination, departure, opts)
	if err != nil {
		var noRoute *NoRouteError
		if errors.As(err, &noRoute) && p.metrics != nil {
			p.metrics.NoRouteResults.Inc()
		}
		return nil, err
	}

	log.Info("journey search complete",
		"results", len(journeys),
		"duration", time.Since(start).Round(time.Millisecond))
	return journeys, nil
}

func (p *Planner) search(ctx context.Context, log *slog.Logger, origin, destination geo.Point, departure time.Time, opts Options) ([]Journey, error) {
	// Resolve endpoints into candidate stop sets expanded to all colocated
	// mode-specific records.
	originCands, err := p.candidates(ctx, origin, opts)
	if err != nil {
		return nil, err
	}
	destCands, err := p.candidates(ctx, destination, opts)
	if err != nil {
		return nil, err
	}

	var journeys []Journey

	directWalk := origin.DistanceTo(destination)
	if directWalk <= opts.WalkCeilingMeters {
		journeys = append(journeys, p.pureWalk(origin, destination, departure, directWalk))
	}

	if len(originCands) == 0 || len(destCands) == 0 {
		if len(journeys) > 0 {
			return p.rank(journeys, opts), nil
		}
		if len(originCands) == 0 {
			return nil, &NoRouteError{Reason: ReasonNoOriginStops}
		}
		return nil, &NoRouteError{Reason: ReasonNoDestinationStops}
	}

	destIndex := buildDestIndex(destCands)

	frontier, err := p.initialBoardings(ctx, origin, originCands, departure, opts)
	if err != nil {
		return nil, err
	}
	hadBoardings := len(frontier) > 0

	for round := 0; round < opts.MaxRounds && len(frontier) > 0; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frontier = boundFrontier(frontier, opts.MaxBoardingsPerRound)

		lastRound := round == opts.MaxRounds-1
		outcomes, err := p.exploreRound(ctx, log, frontier, destination, destIndex, lastRound, opts)
		if err != nil {
			return nil, err
		}

		var next []boarding
		for _, out := range outcomes {
			journeys = append(journeys, out.completed...)
			next = append(next, out.transfers...)
		}
		frontier = next
	}

	if len(journeys) == 0 {
		if !hadBoardings {
			return nil, &NoRouteError{Reason: ReasonOutsideHours}
		}
		return nil, &NoRouteError{Reason: ReasonNoConnection}
	}
	return p.rank(journeys, opts), nil
}

// candidates finds deduplicated hubs near a point and re-expands them to
// every mode-specific stop at the hub.
func (p *Planner) candidates(ctx context.Context, point geo.Point, opts Options) ([]locator.NearbyStop, error) {
	hubs, err := p.locator.FindBestNearbyStops(ctx, point.Lat, point.Lon, opts.CandidateStops, opts.SearchRadiusMeters)
	if err != nil {
		return nil, err
	}
	return p.locator.ExpandToAllSameNameStops(ctx, point.Lat, point.Lon, hubs)
}

func (p *Planner) pureWalk(origin, destination geo.Point, departure time.Time, distance float64) Journey {
	walkMin := geo.WalkMinutes(distance)
	j := Journey{Segments: []Segment{{
		Kind:           KindWalk,
		From:           Place{Name: "Origin", Lat: origin.Lat, Lon: origin.Lon},
		To:             Place{Name: "Destination", Lat: destination.Lat, Lon: destination.Lon},
		DepartureTime:  departure,
		ArrivalTime:    departure.Add(time.Duration(walkMin) * time.Minute),
		Duration:       time.Duration(walkMin) * time.Minute,
		DistanceMeters: distance,
	}}}
	j.finalize()
	return j
}

// initialBoardings queries each origin candidate, in parallel, for the first
// departures at or after the arrival-on-foot instant.
func (p *Planner) initialBoardings(ctx context.Context, origin geo.Point, cands []locator.NearbyStop, departure time.Time, opts Options) ([]boarding, error) {
	pl := pool.NewWithResults[[]boarding]().WithContext(ctx).WithMaxGoroutines(searchWorkers)
	for _, cand := range cands {
		cand := cand
		pl.Go(func(ctx context.Context) ([]boarding, error) {
			walkMin := cand.WalkMinutes()
			ready := departure.Add(time.Duration(walkMin) * time.Minute)
			deps, err := p.store.NextDepartures(ctx, cand.ID, opts.DeparturesPerStop, ready)
			if err != nil {
				if errors.Is(err, storage.ErrNoData) || ctx.Err() != nil {
					return nil, err
				}
				// A single failed candidate never fails the search.
				p.logger.Warn("origin candidate skipped", "stop", cand.ID, "error", err)
				return nil, nil
			}

			var prefix []Segment
			if cand.DistanceMeters > 0 {
				prefix = append(prefix, Segment{
					Kind:           KindWalk,
					From:           Place{Name: "Origin", Lat: origin.Lat, Lon: origin.Lon},
					To:             stopPlace(cand.Stop),
					DepartureTime:  departure,
					ArrivalTime:    ready,
					Duration:       ready.Sub(departure),
					DistanceMeters: cand.DistanceMeters,
				})
			}

			boardings := make([]boarding, 0, len(deps))
			for _, dep := range deps {
				boardings = append(boardings, boarding{
					dep:        dep,
					boardStop:  cand.Stop,
					segments:   prefix,
					usedRoutes: map[string]bool{dep.RouteID: true},
				})
			}
			return boardings, nil
		})
	}
	results, err := pl.Wait()
	if err != nil {
		return nil, err
	}
	var all []boarding
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// rideOutcome is the result of following one boarded trip.
type rideOutcome struct {
	completed []Journey
	transfers []boarding
}

// exploreRound follows every frontier boarding in parallel.
func (p *Planner) exploreRound(ctx context.Context, log *slog.Logger, frontier []boarding, destination geo.Point, dests *destIndex, lastRound bool, opts Options) ([]rideOutcome, error) {
	pl := pool.NewWithResults[rideOutcome]().WithContext(ctx).WithMaxGoroutines(searchWorkers)
	for _, b := range frontier {
		b := b
		pl.Go(func(ctx context.Context) (rideOutcome, error) {
			return p.ride(ctx, log, b, destination, dests, lastRound, opts)
		})
	}
	return pl.Wait()
}

// ride follows a boarded trip stop by stop: at each subsequent stop it checks
// for destination arrival and, unless this is the final round, opens transfer
// boardings to nearby stops on other routes.
func (p *Planner) ride(ctx context.Context, log *slog.Logger, b boarding, destination geo.Point, dests *destIndex, lastRound bool, opts Options) (rideOutcome, error) {
	var out rideOutcome

	times, err := p.store.StopTimesForTrip(ctx, b.dep.TripID)
	if err != nil {
		if errors.Is(err, storage.ErrNoData) || ctx.Err() != nil {
			return out, err
		}
		log.Warn("trip skipped", "trip", b.dep.TripID, "error", err)
		return out, nil
	}

	boardIdx := -1
	for i, st := range times {
		if st.StopID == b.dep.StopID && st.StopSequence == b.dep.StopSequence {
			boardIdx = i
			break
		}
	}
	if boardIdx == -1 || !sequenceMonotonic(times) {
		// Corrupt trip data: skip and log, never fail the whole search.
		log.Warn("corrupt trip skipped", "trip", b.dep.TripID)
		return out, nil
	}

	for i := boardIdx + 1; i < len(times); i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		st := times[i]
		stop, err := p.store.StopByID(ctx, st.StopID)
		if err != nil {
			log.Warn("unknown stop on trip skipped", "trip", b.dep.TripID, "stop", st.StopID)
			continue
		}
		arrival := b.dep.ServiceDay.Add(time.Duration(st.ArrivalMinutes) * time.Minute)

		transit := Segment{
			Kind:              KindTransit,
			From:              stopPlace(b.boardStop),
			To:                stopPlace(*stop),
			DepartureTime:     b.dep.Time,
			ArrivalTime:       arrival,
			Duration:          arrival.Sub(b.dep.Time),
			RouteID:           b.dep.RouteID,
			RouteShortName:    b.dep.RouteShortName,
			Mode:              b.dep.Mode,
			TripID:            b.dep.TripID,
			Headsign:          b.dep.Headsign,
			IntermediateStops: i - boardIdx - 1,
		}

		if dests.matches(*stop, opts.TransferRadiusMeters) {
			out.completed = append(out.completed, p.complete(b.segments, transit, *stop, destination, arrival))
		}

		if !lastRound {
			tb, err := p.transferBoardings(ctx, log, b, transit, *stop, arrival, opts)
			if err != nil {
				return out, err
			}
			out.transfers = append(out.transfers, tb...)
		}
	}
	return out, nil
}

// complete materializes a finished itinerary: the prefix, the final transit
// leg and, when the alighting stop is not the literal destination, a last
// walk.
func (p *Planner) complete(prefix []Segment, transit Segment, alight gtfs.Stop, destination geo.Point, arrival time.Time) Journey {
	segments := append(copySegments(prefix), transit)

	walkDist := geo.Haversine(alight.Lat, alight.Lon, destination.Lat, destination.Lon)
	if walkDist > 0.5 {
		walkMin := geo.WalkMinutes(walkDist)
		segments = append(segments, Segment{
			Kind:           KindWalk,
			From:           stopPlace(alight),
			To:             Place{Name: "Destination", Lat: destination.Lat, Lon: destination.Lon},
			DepartureTime:  arrival,
			ArrivalTime:    arrival.Add(time.Duration(walkMin) * time.Minute),
			Duration:       time.Duration(walkMin) * time.Minute,
			DistanceMeters: walkDist,
		})
	}
	j := Journey{Segments: segments}
	j.finalize()
	return j
}

// transferBoardings opens the next round from an intermediate stop: walk to
// each stop within the transfer radius and take the first departures of
// routes not already ridden.
func (p *Planner) transferBoardings(ctx context.Context, log *slog.Logger, b boarding, transit Segment, alight gtfs.Stop, arrival time.Time, opts Options) ([]boarding, error) {
	nearby, err := p.locator.FindNearbyStops(ctx, alight.Lat, alight.Lon, opts.TransferRadiusMeters, 8)
	if err != nil {
		if errors.Is(err, storage.ErrNoData) || ctx.Err() != nil {
			return nil, err
		}
		log.Warn("transfer lookup skipped", "stop", alight.ID, "error", err)
		return nil, nil
	}

	var boardings []boarding
	for _, nb := range nearby {
		walkMin := nb.WalkMinutes()
		ready := arrival.Add(time.Duration(walkMin) * time.Minute)
		deps, err := p.store.NextDepartures(ctx, nb.ID, opts.DeparturesPerStop, ready)
		if err != nil {
			if errors.Is(err, storage.ErrNoData) || ctx.Err() != nil {
				return nil, err
			}
			log.Warn("transfer candidate skipped", "stop", nb.ID, "error", err)
			continue
		}
		for _, dep := range deps {
			if b.usedRoutes[dep.RouteID] || dep.TripID == b.dep.TripID {
				continue
			}
			segments := append(copySegments(b.segments), transit)
			if nb.ID != alight.ID && nb.DistanceMeters > 0 {
				segments = append(segments, Segment{
					Kind:           KindWalk,
					From:           stopPlace(alight),
					To:             stopPlace(nb.Stop),
					DepartureTime:  arrival,
					ArrivalTime:    ready,
					Duration:       ready.Sub(arrival),
					DistanceMeters: nb.DistanceMeters,
				})
			}
			used := make(map[string]bool, len(b.usedRoutes)+1)
			for r := range b.usedRoutes {
				used[r] = true
			}
			used[dep.RouteID] = true
			boardings = append(boardings, boarding{
				dep:        dep,
				boardStop:  nb.Stop,
				segments:   segments,
				usedRoutes: used,
			})
		}
	}
	return boardings, nil
}

// rank deduplicates by ordered route-id sequence, tags the best itineraries
// and sorts by arrival time then duration.
func (p *Planner) rank(journeys []Journey, opts Options) []Journey {
	// The fan-out gathers results in nondeterministic order; a total order
	// here makes identical searches return identical lists.
	sort.Slice(journeys, func(i, j int) bool {
		if !journeys[i].ArrivalTime.Equal(journeys[j].ArrivalTime) {
			return journeys[i].ArrivalTime.Before(journeys[j].ArrivalTime)
		}
		if journeys[i].Duration != journeys[j].Duration {
			return journeys[i].Duration < journeys[j].Duration
		}
		if ri, rj := journeys[i].routeSequence(), journeys[j].routeSequence(); ri != rj {
			return ri < rj
		}
		if journeys[i].WalkMeters != journeys[j].WalkMeters {
			return journeys[i].WalkMeters < journeys[j].WalkMeters
		}
		return len(journeys[i].Segments) < len(journeys[j].Segments)
	})

	seen := make(map[string]bool)
	deduped := journeys[:0]
	for _, j := range journeys {
		key := j.routeSequence()
		if key == "" {
			key = "walk"
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, j)
	}
	journeys = deduped

	if len(journeys) > 0 {
		fastest := 0
		for i, j := range journeys {
			if j.Duration < journeys[fastest].Duration {
				fastest = i
			}
		}
		journeys[fastest].Tags = append(journeys[fastest].Tags, TagFastest)

		fewest := 0
		for i, j := range journeys {
			fl, bl := j.transitLegs(), journeys[fewest].transitLegs()
			if fl < bl || (fl == bl && j.Duration < journeys[fewest].Duration) {
				fewest = i
			}
		}
		journeys[fewest].Tags = append(journeys[fewest].Tags, TagFewestTransfers)
	}

	if len(journeys) > opts.MaxResults {
		journeys = journeys[:opts.MaxResults]
	}
	return journeys
}

// destIndex answers "is this stop a destination?" by id, falling back to
// proximity against the candidate list.
type destIndex struct {
	byID  map[string]locator.NearbyStop
	cands []locator.NearbyStop
}

func buildDestIndex(cands []locator.NearbyStop) *destIndex {
	idx := &destIndex{byID: make(map[string]locator.NearbyStop, len(cands)), cands: cands}
	for _, c := range cands {
		idx.byID[c.ID] = c
	}
	return idx
}

func (d *destIndex) matches(stop gtfs.Stop, radiusMeters float64) bool {
	if _, ok := d.byID[stop.ID]; ok {
		return true
	}
	for _, c := range d.cands {
		if geo.Haversine(stop.Lat, stop.Lon, c.Lat, c.Lon) <= radiusMeters {
			return true
		}
	}
	return false
}

// boundFrontier orders a frontier deterministically and truncates it to the
// per-round ceiling: earliest departures first.
func boundFrontier(frontier []boarding, limit int) []boarding {
	sort.Slice(frontier, func(i, j int) bool {
		if !frontier[i].dep.Time.Equal(frontier[j].dep.Time) {
			return frontier[i].dep.Time.Before(frontier[j].dep.Time)
		}
		if frontier[i].dep.TripID != frontier[j].dep.TripID {
			return frontier[i].dep.TripID < frontier[j].dep.TripID
		}
		return frontier[i].dep.StopID < frontier[j].dep.StopID
	})
	if len(frontier) > limit {
		frontier = frontier[:limit]
	}
	return frontier
}

func sequenceMonotonic(times []gtfs.StopTime) bool {
	for i := 1; i < len(times); i++ {
		if times[i].StopSequence <= times[i-1].StopSequence {
			return false
		}
	}
	return true
}

func stopPlace(s gtfs.Stop) Place {
	return Place{ID: s.ID, Name: s.Name, Lat: s.Lat, Lon: s.Lon}
}

func copySegments(segments []Segment) []Segment {
	out := make([]Segment, len(segments), len(segments)+2)
	copy(out, segments)
	return out
}
