package geo

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6_371_000

// walkSpeed is the assumed pedestrian speed in meters per second (~5 km/h).
const walkSpeed = 1.39

// Point is a WGS 84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// QueryError reports coordinates outside the valid WGS 84 range.
type QueryError struct {
	Lat, Lon float64
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("coordinates out of range: lat=%.5f lon=%.5f", e.Lat, e.Lon)
}

// Validate returns a *QueryError if the point is outside [-90,90]x[-180,180].
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 ||
		math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return &QueryError{Lat: p.Lat, Lon: p.Lon}
	}
	return nil
}

// DistanceTo returns the great-circle distance in meters to another point.
func (p Point) DistanceTo(o Point) float64 {
	return Haversine(p.Lat, p.Lon, o.Lat, o.Lon)
}

// Haversine returns the great-circle distance in meters between two lat/lon points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// BoundingBoxRadius returns the approximate degree offsets covering a radius
// in meters at the given latitude. A degree of latitude is ~111 km anywhere;
// a degree of longitude shrinks by cos(lat).
func BoundingBoxRadius(lat, radiusMeters float64) (latDeg, lonDeg float64) {
	latDeg = radiusMeters / earthRadiusMeters * (180 / math.Pi)
	lonDeg = latDeg / math.Cos(toRad(lat))
	return latDeg, lonDeg
}

// WalkMinutes returns whole minutes needed to walk the given distance,
// rounded up so a short hop never costs zero time.
func WalkMinutes(distanceMeters float64) int {
	if distanceMeters <= 0 {
		return 0
	}
	return int(math.Ceil(distanceMeters / walkSpeed / 60))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
