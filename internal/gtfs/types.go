package gtfs

// Mode is the transit mode of a route, following the standard route_type codes.
type Mode int

const (
	ModeTram Mode = iota
	ModeMetro
	ModeCommuterRail
	ModeBus
	ModeFerry
)

func (m Mode) String() string {
	switch m {
	case ModeTram:
		return "tram"
	case ModeMetro:
		return "metro"
	case ModeCommuterRail:
		return "commuter-rail"
	case ModeBus:
		return "bus"
	case ModeFerry:
		return "ferry"
	default:
		return "bus"
	}
}

// LocationType distinguishes boardable stops from station parents.
type LocationType int

const (
	LocationStop    LocationType = 0
	LocationStation LocationType = 1
)

// Stop is a normalized boardable stop or station record.
type Stop struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Lat           float64      `json:"lat"`
	Lon           float64      `json:"lon"`
	LocationType  LocationType `json:"locationType"`
	ParentStation string       `json:"parentStation,omitempty"`
}

// Route is a normalized route record. Colors are six-digit hex without '#'.
type Route struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
	Mode      Mode   `json:"mode"`
	Color     string `json:"color"`
	TextColor string `json:"textColor"`
}

// Trip is a normalized trip record.
type Trip struct {
	ID          string `json:"id"`
	RouteID     string `json:"routeId"`
	ServiceID   string `json:"serviceId"`
	Headsign    string `json:"headsign"`
	DirectionID int    `json:"directionId"`
}

// StopTime is a normalized per-stop schedule entry. Times are minutes since
// the agency's local midnight, unclamped; post-midnight service exceeds 1440.
type StopTime struct {
	TripID           string
	StopID           string
	ArrivalMinutes   int
	DepartureMinutes int
	StopSequence     int
}

// Service is a weekly service calendar entry. Dates are YYYYMMDD.
type Service struct {
	ID        string
	Weekdays  [7]bool // indexed by time.Weekday (Sunday = 0)
	StartDate string
	EndDate   string
}

// ServiceException is a single-date addition or removal of a service.
type ServiceException struct {
	ServiceID string
	Date      string // YYYYMMDD
	Added     bool   // true = service added on Date, false = removed
}

// Entities is the full normalized output of one feed.
type Entities struct {
	Stops      []Stop
	Routes     []Route
	Trips      []Trip
	StopTimes  []StopTime
	Services   []Service
	Exceptions []ServiceException
}

// Raw row types mirror the feed's tabular files one column per field. All
// fields are strings; coercion happens during normalization so a bad value
// rejects a row instead of crashing a file.

type StopRow struct {
	StopID        string `csv:"stop_id"`
	StopName      string `csv:"stop_name"`
	StopLat       string `csv:"stop_lat"`
	StopLon       string `csv:"stop_lon"`
	LocationType  string `csv:"location_type"`
	ParentStation string `csv:"parent_station"`
}

type RouteRow struct {
	RouteID        string `csv:"route_id"`
	RouteShortName string `csv:"route_short_name"`
	RouteLongName  string `csv:"route_long_name"`
	RouteType      string `csv:"route_type"`
	RouteColor     string `csv:"route_color"`
	RouteTextColor string `csv:"route_text_color"`
}

type TripRow struct {
	TripID       string `csv:"trip_id"`
	RouteID      string `csv:"route_id"`
	ServiceID    string `csv:"service_id"`
	TripHeadsign string `csv:"trip_headsign"`
	DirectionID  string `csv:"direction_id"`
}

type StopTimeRow struct {
	TripID        string `csv:"trip_id"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	StopID        string `csv:"stop_id"`
	StopSequence  string `csv:"stop_sequence"`
}

type CalendarRow struct {
	ServiceID string `csv:"service_id"`
	Monday    string `csv:"monday"`
	Tuesday   string `csv:"tuesday"`
	Wednesday string `csv:"wednesday"`
	Thursday  string `csv:"thursday"`
	Friday    string `csv:"friday"`
	Saturday  string `csv:"saturday"`
	Sunday    string `csv:"sunday"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
}

type CalendarDateRow struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType string `csv:"exception_type"`
}

// Feed holds the raw rows of one parsed feed before normalization.
type Feed struct {
	Stops         []StopRow
	Routes        []RouteRow
	Trips         []TripRow
	StopTimes     []StopTimeRow
	Calendar      []CalendarRow
	CalendarDates []CalendarDateRow
}
