package routing

import (
	"fmt"
	"io"

	"github.com/twpayne/go-kml"
)

// WriteKML renders the route geometry and its maneuver points as a KML
// document, for loading into map tooling when debugging guidance.
func WriteKML(w io.Writer, route *Route, name string) error {
	coords := make([]kml.Coordinate, len(route.Geometry))
	for i, p := range route.Geometry {
		coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}

	children := []kml.Element{
		kml.Name(name),
		kml.Placemark(
			kml.Name("Route"),
			kml.Description(fmt.Sprintf("%.0f m, %.0f s", route.TotalDistanceMeters, route.TotalDurationSeconds)),
			kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(coords...),
			),
		),
	}

	for _, step := range route.Steps {
		children = append(children, kml.Placemark(
			kml.Name(step.ID.String()),
			kml.Description(step.InstructionText),
			kml.Point(
				kml.Coordinates(kml.Coordinate{Lon: step.Location.Longitude, Lat: step.Location.Latitude}),
			),
		))
	}

	if err := kml.KML(kml.Document(children...)).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}
