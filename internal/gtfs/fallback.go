package gtfs

import (
	"fmt"

	"goride/internal/localtime"
)

// FallbackStop is one stop on a fallback line, in travel order.
type FallbackStop struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

// FallbackLine describes a line for the fallback timetable generator: its
// stops in one direction, the first and last departures of the day (HH:MM),
// a fixed headway and a fixed hop time between consecutive stops.
type FallbackLine struct {
	RouteID     string
	ShortName   string
	LongName    string
	Mode        Mode
	Stops       []FallbackStop
	First       string // first departure, e.g. "06:00"
	Last        string // last departure; may exceed "24:00" for night service
	HeadwayMin  int
	HopMinutes  int // scheduled minutes between consecutive stops
	DwellAtStop int // minutes a vehicle waits at each stop, usually 0
}

// FallbackServiceID is the single every-day service the generator emits.
const FallbackServiceID = "FALLBACK"

// GenerateFallback builds a synthetic schedule from line definitions. The
// output is indistinguishable from a parsed feed: trips run both directions
// at the given headway, and the engine has no notion of its provenance.
func GenerateFallback(lines []FallbackLine) (*Entities, error) {
	ents := &Entities{
		Services: []Service{{
			ID:        FallbackServiceID,
			Weekdays:  [7]bool{true, true, true, true, true, true, true},
			StartDate: "20200101",
			EndDate:   "20991231",
		}},
	}

	seenStops := make(map[string]bool)
	for _, line := range lines {
		if len(line.Stops) < 2 {
			return nil, fmt.Errorf("line %s: needs at least two stops", line.RouteID)
		}
		if line.HeadwayMin <= 0 || line.HopMinutes <= 0 {
			return nil, fmt.Errorf("line %s: headway and hop minutes must be positive", line.RouteID)
		}
		first, err := localtime.ParseServiceTime(line.First + ":00")
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", line.RouteID, err)
		}
		last, err := localtime.ParseServiceTime(line.Last + ":00")
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", line.RouteID, err)
		}
		if last < first {
			return nil, fmt.Errorf("line %s: last departure %s before first %s", line.RouteID, line.Last, line.First)
		}

		ents.Routes = append(ents.Routes, Route{
			ID:        line.RouteID,
			ShortName: line.ShortName,
			LongName:  line.LongName,
			Mode:      line.Mode,
			Color:     DefaultRouteColor,
			TextColor: DefaultRouteTextColor,
		})
		for _, s := range line.Stops {
			if seenStops[s.ID] {
				continue
			}
			seenStops[s.ID] = true
			ents.Stops = append(ents.Stops, Stop{
				ID:   s.ID,
				Name: s.Name,
				Lat:  s.Lat,
				Lon:  s.Lon,
			})
		}

		for direction := 0; direction <= 1; direction++ {
			stops := line.Stops
			if direction == 1 {
				stops = reverseStops(stops)
			}
			headsign := stops[len(stops)-1].Name

			run := 0
			for start := first; start <= last; start += line.HeadwayMin {
				tripID := fmt.Sprintf("%s-%d-%04d", line.RouteID, direction, run)
				run++
				ents.Trips = append(ents.Trips, Trip{
					ID:          tripID,
					RouteID:     line.RouteID,
					ServiceID:   FallbackServiceID,
					Headsign:    headsign,
					DirectionID: direction,
				})
				t := start
				for seq, s := range stops {
					ents.StopTimes = append(ents.StopTimes, StopTime{
						TripID:           tripID,
						StopID:           s.ID,
						ArrivalMinutes:   t,
						DepartureMinutes: t + line.DwellAtStop,
						StopSequence:     seq + 1,
					})
					t += line.HopMinutes + line.DwellAtStop
				}
			}
		}
	}

	return ents, nil
}

func reverseStops(stops []FallbackStop) []FallbackStop {
	out := make([]FallbackStop, len(stops))
	for i, s := range stops {
		out[len(stops)-1-i] = s
	}
	return out
}

// DefaultFallbackLines is the built-in network used when no feed is on disk:
// the metro trunk, the coastal ferry and two frequent bus corridors.
var DefaultFallbackLines = []FallbackLine{
	{
		RouteID:   "M1",
		ShortName: "M1",
		LongName:  "Fahrettin Altay - Evka 3",
		Mode:      ModeMetro,
		Stops: []FallbackStop{
			{ID: "M1-FAL", Name: "Fahrettin Altay", Lat: 38.3954, Lon: 27.0730},
			{ID: "M1-POL", Name: "Poligon", Lat: 38.3987, Lon: 27.0810},
			{ID: "M1-GOZ", Name: "Göztepe", Lat: 38.4012, Lon: 27.0890},
			{ID: "M1-HAT", Name: "Hatay", Lat: 38.4030, Lon: 27.0975},
			{ID: "M1-IZM", Name: "İzmirspor", Lat: 38.4056, Lon: 27.1050},
			{ID: "M1-UCY", Name: "Üçyol", Lat: 38.4086, Lon: 27.1125},
			{ID: "M1-KON", Name: "Konak", Lat: 38.4189, Lon: 27.1287},
			{ID: "M1-CAN", Name: "Çankaya", Lat: 38.4222, Lon: 27.1360},
			{ID: "M1-BAS", Name: "Basmane", Lat: 38.4225, Lon: 27.1440},
			{ID: "M1-HLK", Name: "Halkapınar", Lat: 38.4302, Lon: 27.1580},
		},
		First:      "06:00",
		Last:       "24:20",
		HeadwayMin: 7,
		HopMinutes: 2,
	},
	{
		RouteID:   "F1",
		ShortName: "F1",
		LongName:  "Konak - Karşıyaka",
		Mode:      ModeFerry,
		Stops: []FallbackStop{
			{ID: "F1-KON", Name: "Konak İskele", Lat: 38.4175, Lon: 27.1270},
			{ID: "F1-KAR", Name: "Karşıyaka İskele", Lat: 38.4556, Lon: 27.1201},
		},
		First:      "07:00",
		Last:       "23:00",
		HeadwayMin: 30,
		HopMinutes: 20,
	},
	{
		RouteID:   "B169",
		ShortName: "169",
		LongName:  "Fahrettin Altay - Balçova",
		Mode:      ModeBus,
		Stops: []FallbackStop{
			{ID: "B169-FAL", Name: "Fahrettin Altay Aktarma", Lat: 38.3951, Lon: 27.0735},
			{ID: "B169-VED", Name: "Vedide Baha", Lat: 38.3920, Lon: 27.0640},
			{ID: "B169-BAL", Name: "Balçova", Lat: 38.3890, Lon: 27.0510},
		},
		First:      "06:30",
		Last:       "23:30",
		HeadwayMin: 15,
		HopMinutes: 4,
	},
	{
		RouteID:   "B35",
		ShortName: "35",
		LongName:  "Konak - Alsancak",
		Mode:      ModeBus,
		Stops: []FallbackStop{
			{ID: "B35-KON", Name: "Konak Aktarma", Lat: 38.4186, Lon: 27.1290},
			{ID: "B35-CUM", Name: "Cumhuriyet Meydanı", Lat: 38.4280, Lon: 27.1360},
			{ID: "B35-ALS", Name: "Alsancak", Lat: 38.4370, Lon: 27.1430},
		},
		First:      "06:30",
		Last:       "23:00",
		HeadwayMin: 12,
		HopMinutes: 5,
	},
}
