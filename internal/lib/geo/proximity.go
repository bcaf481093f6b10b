package geo

import "math"

// Nearest finds the polyline vertex closest to point and the distance to it in
// meters. It returns (-1, +Inf) for an empty polyline.
//
// The search is a linear scan. Routes carry hundreds of vertices and this runs
// once per position fix, so a spatial index is not worth its upkeep; one could
// be added here without changing callers.
func Nearest(point Coordinate, line Polyline) (int, float64) {
	index := -1
	minDistance := math.Inf(1)

	for i, vertex := range line {
		d := Distance(point, vertex)
		if d < minDistance {
			minDistance = d
			index = i
		}
	}

	return index, minDistance
}

// ProjectOnSegment returns the fraction t in [0, 1] along segment start→end of
// the point closest to p. It uses a local equirectangular approximation, which
// is accurate for segments of a few kilometers.
func ProjectOnSegment(p, start, end Coordinate) float64 {
	if start.Equal(end) {
		return 0
	}

	cosLat := math.Cos(toRadians((start.Latitude + end.Latitude) / 2))
	dx := (end.Longitude - start.Longitude) * cosLat
	dy := end.Latitude - start.Latitude
	px := (p.Longitude - start.Longitude) * cosLat
	py := p.Latitude - start.Latitude

	t := (px*dx + py*dy) / (dx*dx + dy*dy)
	return math.Max(0, math.Min(1, t))
}
