package geo

import (
	"errors"
	"math"

	"github.com/twpayne/go-polyline"
)

// EarthRadiusMeters is the mean Earth radius used by all distance calculations
const EarthRadiusMeters = 6371000.0

// Distance calculates great-circle distance between two points using Haversine formula.
// It is total: identical points return 0 and no input produces an error.
func Distance(a, b Coordinate) float64 {
	if a.Equal(b) {
		return 0
	}

	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dlat := lat2 - lat1
	dlon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// Bearing calculates the initial bearing from one point towards another, in
// degrees clockwise from north within [0, 360). Coincident points have a
// defined bearing of 0.
func Bearing(from, to Coordinate) float64 {
	if from.Equal(to) {
		return 0
	}

	lat1 := toRadians(from.Latitude)
	lat2 := toRadians(to.Latitude)
	dlon := toRadians(to.Longitude - from.Longitude)

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)

	deg := math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// Destination returns the point reached by travelling the given distance from
// start along a great circle with the given initial bearing.
func Destination(start Coordinate, bearing, meters float64) Coordinate {
	delta := meters / EarthRadiusMeters
	theta := toRadians(bearing)
	lat1 := toRadians(start.Latitude)
	lon1 := toRadians(start.Longitude)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2))

	// Normalise longitude to [-180, 180)
	lng := math.Mod(toDegrees(lon2)+540, 360) - 180
	return Coordinate{Longitude: lng, Latitude: toDegrees(lat2)}
}

// Interpolate calculates a point along the segment between start and end.
// t=0 returns start, t=1 returns end. Linear interpolation is accurate enough
// for road segments, which are short.
func Interpolate(start, end Coordinate, t float64) Coordinate {
	return Coordinate{
		Longitude: start.Longitude + t*(end.Longitude-start.Longitude),
		Latitude:  start.Latitude + t*(end.Latitude-start.Latitude),
	}
}

// DecodePolyline decodes a Google encoded polyline string (precision 5)
func DecodePolyline(encoded string) (Polyline, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make(Polyline, len(coords))
	for i, coord := range coords {
		// go-polyline yields [lat, lng] pairs
		points[i] = Coordinate{Latitude: coord[0], Longitude: coord[1]}
		if !points[i].Valid() {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// EncodePolyline encodes points as a Google encoded polyline string (precision 5)
func EncodePolyline(points Polyline) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
