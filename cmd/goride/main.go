package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"goride/internal/config"
	"goride/internal/geo"
	"goride/internal/gtfs"
	"goride/internal/localtime"
	"goride/internal/locator"
	"goride/internal/metrics"
	"goride/internal/planner"
	"goride/internal/server"
	"goride/internal/storage"
)

func main() {
	app := &cli.App{
		Name:  "goride",
		Usage: "walk and transit journey planning over schedule feeds",
		Commands: []*cli.Command{
			importCommand(),
			serveCommand(),
			planCommand(),
			nearbyCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env bundles what every command needs after startup.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *storage.Store
	metrics *metrics.Collector
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	clock := localtime.NewClock(cfg.UTCOffsetMinutes)
	store, err := storage.Open(cfg.DBPath, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &env{cfg: cfg, logger: logger, store: store, metrics: metrics.NewCollector()}, nil
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "parse a schedule feed and atomically replace the stored one",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "feed directory (defaults to GORIDE_FEED_DIR)"},
			&cli.StringFlag{Name: "zip", Usage: "feed zip archive"},
			&cli.BoolFlag{Name: "fallback", Usage: "import the built-in fallback timetable instead of a feed"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.store.Close()
			return runImport(c, e)
		},
	}
}

func runImport(c *cli.Context, e *env) error {
	var (
		ents   *gtfs.Entities
		source string
	)
	switch {
	case c.Bool("fallback"):
		var err error
		ents, err = gtfs.GenerateFallback(gtfs.DefaultFallbackLines)
		if err != nil {
			return err
		}
		source = "fallback"
	case c.String("zip") != "":
		source = c.String("zip")
		feed, parseErrs, err := gtfs.ParseZip(source)
		if err != nil {
			return err
		}
		ents = normalizeFeed(e.logger, feed, parseErrs)
	default:
		source = c.String("dir")
		if source == "" {
			source = e.cfg.FeedDir
		}
		feed, parseErrs, err := gtfs.ParseDir(source)
		if err != nil {
			return err
		}
		ents = normalizeFeed(e.logger, feed, parseErrs)
	}

	report := gtfs.Validate(ents)
	for _, msg := range report.Errors {
		e.logger.Warn("feed validation", "issue", msg)
	}

	generation, err := e.store.ReplaceAll(c.Context, ents, source)
	if err != nil {
		e.metrics.ImportFailures.Inc()
		return fmt.Errorf("import: %w", err)
	}
	e.metrics.Imports.Inc()
	e.logger.Info("import complete",
		"source", source,
		"generation", generation,
		"stops", len(ents.Stops),
		"routes", len(ents.Routes),
		"trips", len(ents.Trips))
	return nil
}

func normalizeFeed(logger *slog.Logger, feed *gtfs.Feed, parseErrs []gtfs.ParseError) *gtfs.Entities {
	ents, normErrs := gtfs.Normalize(feed)
	for _, pe := range append(parseErrs, normErrs...) {
		logger.Warn("feed row skipped", "file", pe.File, "line", pe.Line, "reason", pe.Reason)
	}
	return ents
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the JSON query API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (defaults to GORIDE_LISTEN_ADDR)"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.store.Close()

			if !e.store.HasData(c.Context) {
				e.logger.Warn("no schedule data loaded; run `goride import` first")
			}

			loc := locator.New(e.store, e.logger)
			pl := planner.New(e.store, loc, e.logger, e.metrics)
			srv := server.New(e.store, loc, pl, e.metrics, e.logger, e.cfg.Search)

			addr := c.String("addr")
			if addr == "" {
				addr = e.cfg.ListenAddr
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			errc := make(chan error, 1)
			go func() { errc <- srv.Listen(addr) }()

			select {
			case err := <-errc:
				return err
			case sig := <-stop:
				e.logger.Info("shutting down", "signal", sig.String())
				return srv.Shutdown()
			}
		},
	}
}

func planCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "plan a journey between two points",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "from-lat", Required: true},
			&cli.Float64Flag{Name: "from-lon", Required: true},
			&cli.Float64Flag{Name: "to-lat", Required: true},
			&cli.Float64Flag{Name: "to-lon", Required: true},
			&cli.StringFlag{Name: "departure", Usage: "RFC 3339 departure instant (default now)"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.store.Close()

			departure := time.Now()
			if raw := c.String("departure"); raw != "" {
				departure, err = time.Parse(time.RFC3339, raw)
				if err != nil {
					return fmt.Errorf("departure: %w", err)
				}
			}

			loc := locator.New(e.store, e.logger)
			pl := planner.New(e.store, loc, e.logger, e.metrics)
			journeys, err := pl.PlanJourney(c.Context,
				geo.Point{Lat: c.Float64("from-lat"), Lon: c.Float64("from-lon")},
				geo.Point{Lat: c.Float64("to-lat"), Lon: c.Float64("to-lon")},
				departure, e.cfg.Search)
			if err != nil {
				return err
			}
			printJourneys(journeys)
			return nil
		},
	}
}

func printJourneys(journeys []planner.Journey) {
	for i, j := range journeys {
		tags := ""
		if len(j.Tags) > 0 {
			tags = " [" + strings.Join(j.Tags, ", ") + "]"
		}
		fmt.Printf("%d. %s -> %s (%s, %d transfers, %.0f m walk)%s\n",
			i+1,
			j.DepartureTime.Format("15:04"),
			j.ArrivalTime.Format("15:04"),
			j.Duration.Round(time.Minute),
			j.Transfers,
			j.WalkMeters,
			tags)
		for _, s := range j.Segments {
			switch s.Kind {
			case planner.KindWalk:
				fmt.Printf("   walk %.0f m (%s)\n", s.DistanceMeters, s.Duration.Round(time.Minute))
			case planner.KindTransit:
				fmt.Printf("   %s %s toward %s, %s -> %s (%d stops)\n",
					s.Mode, s.RouteShortName, s.Headsign,
					s.DepartureTime.Format("15:04"), s.ArrivalTime.Format("15:04"),
					s.IntermediateStops+1)
			}
		}
	}
}

func nearbyCommand() *cli.Command {
	return &cli.Command{
		Name:  "nearby",
		Usage: "list stops near a point",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "lat", Required: true},
			&cli.Float64Flag{Name: "lon", Required: true},
			&cli.Float64Flag{Name: "radius", Value: 500},
			&cli.IntFlag{Name: "limit", Value: 10},
		},
		Action: func(c *cli.Context) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.store.Close()

			loc := locator.New(e.store, e.logger)
			stops, err := loc.FindNearbyStops(c.Context,
				c.Float64("lat"), c.Float64("lon"), c.Float64("radius"), c.Int("limit"))
			if err != nil {
				return err
			}
			for _, st := range stops {
				fmt.Printf("%-12s %-30s %6.0f m  (%d min walk)\n",
					st.ID, st.Name, st.DistanceMeters, st.WalkMinutes())
			}
			return nil
		},
	}
}
