package geo

// Coordinate represents a WGS84 position in degrees
type Coordinate struct {
	Longitude float64 `json:"lng"`
	Latitude  float64 `json:"lat"`
}

// Polyline is an ordered sequence of coordinates describing a path
type Polyline []Coordinate

// NewCoordinate creates a Coordinate from longitude and latitude values.
// Argument order follows the (lng, lat) convention used by routing providers.
func NewCoordinate(longitude, latitude float64) Coordinate {
	return Coordinate{Longitude: longitude, Latitude: latitude}
}

// Valid reports whether latitude is within [-90, 90] and longitude within [-180, 180]
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Equal reports whether two coordinates are exactly the same point
func (c Coordinate) Equal(o Coordinate) bool {
	return c.Latitude == o.Latitude && c.Longitude == o.Longitude
}

// Length returns the total path length in meters
func (p Polyline) Length() float64 {
	total := 0.0
	for i := 0; i < len(p)-1; i++ {
		total += Distance(p[i], p[i+1])
	}
	return total
}

// First returns the first point of the polyline, or the zero Coordinate if empty
func (p Polyline) First() Coordinate {
	if len(p) == 0 {
		return Coordinate{}
	}
	return p[0]
}

// Last returns the final point of the polyline, or the zero Coordinate if empty
func (p Polyline) Last() Coordinate {
	if len(p) == 0 {
		return Coordinate{}
	}
	return p[len(p)-1]
}
