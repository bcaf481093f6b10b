package routing

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
)

var abidjan = geo.Coordinate{Longitude: -4.0083, Latitude: 5.3600}

func twoLegResponse() RawRoute {
	p1 := geo.Destination(abidjan, 0, 300)
	p2 := geo.Destination(p1, 90, 400)
	p3 := geo.Destination(p2, 180, 200)
	return RawRoute{
		Geometry: geo.Polyline{abidjan, p1, p2, p3},
		Legs: []RawLeg{
			{Steps: []RawStep{
				{ManeuverType: "depart", Name: "Boulevard Latrille", DistanceMeters: 300, DurationSeconds: 40, Location: abidjan},
				{ManeuverType: "turn", Modifier: "right", Name: "Rue des Jardins", DistanceMeters: 400, DurationSeconds: 60, Location: p1},
				{ManeuverType: "arrive", DistanceMeters: 0, Location: p2},
			}},
			{Steps: []RawStep{
				{ManeuverType: "depart", DistanceMeters: 0, Location: p2},
				{ManeuverType: "turn", Modifier: "right", DistanceMeters: 200, DurationSeconds: 30, Location: p2},
				{ManeuverType: "arrive", Modifier: "left", Location: p3},
			}},
		},
		DistanceMeters:  900,
		DurationSeconds: 130,
	}
}

func TestParseRoute_FlattensLegsInOrder(t *testing.T) {
	route := ParseRoute(twoLegResponse())

	require.Len(t, route.Steps, 6)
	expectedIDs := []StepID{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}
	for i, step := range route.Steps {
		assert.Equal(t, expectedIDs[i], step.ID)
	}

	assert.Equal(t, 900.0, route.TotalDistanceMeters)
	assert.Equal(t, 130.0, route.TotalDurationSeconds)
	assert.Len(t, route.Geometry, 4)
	assert.True(t, route.HasGuidance())
}

func TestParseRoute_CumulativeDistanceBeforeStep(t *testing.T) {
	route := ParseRoute(twoLegResponse())

	expected := []float64{0, 300, 700, 700, 700, 900}
	for i, step := range route.Steps {
		assert.Equal(t, expected[i], step.CumulativeDistanceMeters, "step %s", step.ID)
		if i > 0 {
			assert.GreaterOrEqual(t, step.CumulativeDistanceMeters, route.Steps[i-1].CumulativeDistanceMeters)
		}
	}
}

func TestParseRoute_InstructionText(t *testing.T) {
	route := ParseRoute(twoLegResponse())

	assert.Equal(t, "Head out on Boulevard Latrille", route.Steps[0].InstructionText)
	assert.Equal(t, "Turn right onto Rue des Jardins", route.Steps[1].InstructionText)
	assert.Equal(t, "You have arrived at your destination", route.Steps[2].InstructionText)
	assert.Equal(t, "Your destination is on the left", route.Steps[5].InstructionText)
}

func TestParseRoute_UnknownManeuverDegradesToContinueStraight(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		modifier string
	}{
		{"unknown type", "teleport", "left"},
		{"turn without modifier", "turn", ""},
		{"turn with unknown modifier", "turn", "backwards"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := ParseRoute(RawRoute{Legs: []RawLeg{{Steps: []RawStep{
				{ManeuverType: tt.typ, Modifier: tt.modifier, DistanceMeters: 10, Location: abidjan},
			}}}})

			require.Len(t, route.Steps, 1)
			assert.Equal(t, ManeuverContinue, route.Steps[0].ManeuverType)
			assert.Equal(t, ModifierStraight, route.Steps[0].Modifier)
			assert.Equal(t, "Continue straight", route.Steps[0].InstructionText)
		})
	}
}

func TestParseRoute_EmptyResponses(t *testing.T) {
	geometry := geo.Polyline{abidjan, geo.Destination(abidjan, 45, 250)}

	route := ParseRoute(RawRoute{Geometry: geometry})
	assert.Empty(t, route.Steps)
	assert.False(t, route.HasGuidance())
	assert.Equal(t, geometry, route.Geometry, "geometry is kept for geometry-only guidance")
	assert.InDelta(t, 250, route.TotalDistanceMeters, 0.01)

	route = ParseRoute(RawRoute{Geometry: geometry, Legs: []RawLeg{{}, {}}})
	assert.Empty(t, route.Steps)

	route = ParseRoute(RawRoute{})
	assert.Empty(t, route.Steps)
	assert.Empty(t, route.Geometry)
	assert.Equal(t, 0.0, route.TotalDistanceMeters)
}

func TestParseRoute_SanitisesProviderData(t *testing.T) {
	p1 := geo.Destination(abidjan, 90, 100)
	route := ParseRoute(RawRoute{
		Geometry: geo.Polyline{{Latitude: 200, Longitude: 10}},
		Legs: []RawLeg{{Steps: []RawStep{
			{ManeuverType: "depart", DistanceMeters: -5, Location: abidjan},
			{ManeuverType: "turn", Modifier: "left", DistanceMeters: math.NaN(), Location: p1},
			{ManeuverType: "arrive", DistanceMeters: 20, Location: p1},
		}}},
	})

	require.Len(t, route.Steps, 3)
	assert.Equal(t, 0.0, route.Steps[0].DistanceMeters)
	assert.Equal(t, 0.0, route.Steps[2].CumulativeDistanceMeters)
	assert.Equal(t, 20.0, route.TotalDistanceMeters, "totals fall back to the step sum")
	assert.Equal(t, geo.Polyline{abidjan, p1, p1}, route.Geometry, "step locations stand in for invalid geometry")
}

func TestRoute_StepLookup(t *testing.T) {
	route := ParseRoute(twoLegResponse())

	step, ok := route.Step(StepID{Leg: 1, Step: 1})
	require.True(t, ok)
	assert.Equal(t, 700.0, step.CumulativeDistanceMeters)

	_, ok = route.Step(StepID{Leg: 3, Step: 0})
	assert.False(t, ok)

	near, ok := route.StepNear(geo.Destination(route.Steps[1].Location, 0, 10), 25)
	require.True(t, ok)
	assert.Equal(t, StepID{Leg: 0, Step: 1}, near.ID)

	_, ok = route.StepNear(geo.Destination(abidjan, 180, 1000), 25)
	assert.False(t, ok)
}

func TestWriteKML(t *testing.T) {
	route := ParseRoute(twoLegResponse())

	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, &route, "Delivery #42"))

	out := buf.String()
	assert.Contains(t, out, "<LineString>")
	assert.Contains(t, out, "Delivery #42")
	assert.Contains(t, out, "Turn right onto Rue des Jardins")
	assert.Contains(t, out, "<coordinates>")
}
