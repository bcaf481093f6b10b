package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/lib/routing"
)

// Field mask is required by the Routes API; requests without one are rejected
const fieldMask = "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline," +
	"routes.legs.endLocation,routes.legs.steps.distanceMeters,routes.legs.steps.staticDuration," +
	"routes.legs.steps.startLocation,routes.legs.steps.navigationInstruction"

// HTTPDoer is the subset of *http.Client used by the client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to Google Routes API v2
type Client struct {
	apiKey     string
	httpClient HTTPDoer
	baseURL    string
}

// NewClient creates a new Google Routes API client
func NewClient(apiKey string, timeout time.Duration) *Client {
	return NewClientWithHTTPDoer(apiKey, "https://routes.googleapis.com", &http.Client{Timeout: timeout})
}

// NewClientWithHTTPDoer creates a client against baseURL using the given HTTP
// implementation
func NewClientWithHTTPDoer(apiKey, baseURL string, doer HTTPDoer) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: doer,
	}
}

// Route computes a driving route with per-step navigation instructions
func (c *Client) Route(ctx context.Context, origin, destination geo.Coordinate) (*routing.RawRoute, error) {
	requestBody := map[string]interface{}{
		"origin":            waypoint(origin),
		"destination":       waypoint(destination),
		"travelMode":        "DRIVE",
		"routingPreference": "TRAFFIC_AWARE",
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/directions/v2:computeRoutes", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response RoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("no routes found in response")
	}

	return convertRoute(response.Routes[0])
}

func waypoint(c geo.Coordinate) map[string]interface{} {
	return map[string]interface{}{
		"location": map[string]interface{}{
			"latLng": map[string]interface{}{
				"latitude":  c.Latitude,
				"longitude": c.Longitude,
			},
		},
	}
}

// convertRoute translates a Routes API route into the provider-neutral shape.
// Google has no explicit arrival step, so one is appended at each leg's end.
func convertRoute(route Route) (*routing.RawRoute, error) {
	geometry, err := geo.DecodePolyline(route.Polyline.EncodedPolyline)
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}

	duration, err := parseDuration(route.Duration)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration: %w", err)
	}

	raw := &routing.RawRoute{
		Geometry:        geometry,
		DistanceMeters:  float64(route.DistanceMeters),
		DurationSeconds: duration,
	}

	for _, leg := range route.Legs {
		rawLeg := routing.RawLeg{}
		for i, step := range leg.Steps {
			stepDuration, _ := parseDuration(step.StaticDuration)
			maneuverType, modifier := translateManeuver(step.NavigationInstruction.Maneuver)
			if i == 0 && maneuverType == routing.ManeuverContinue {
				maneuverType, modifier = routing.ManeuverDepart, ""
			}
			rawLeg.Steps = append(rawLeg.Steps, routing.RawStep{
				ManeuverType:    maneuverType,
				Modifier:        modifier,
				Name:            streetName(step.NavigationInstruction.Instructions),
				DistanceMeters:  float64(step.DistanceMeters),
				DurationSeconds: stepDuration,
				Location:        step.StartLocation.coordinate(),
			})
		}
		if leg.EndLocation != nil {
			rawLeg.Steps = append(rawLeg.Steps, routing.RawStep{
				ManeuverType: routing.ManeuverArrive,
				Location:     leg.EndLocation.coordinate(),
			})
		}
		raw.Legs = append(raw.Legs, rawLeg)
	}

	return raw, nil
}

// maneuvers maps Routes API maneuver enums onto (type, modifier) pairs
var maneuvers = map[string][2]string{
	"DEPART":            {routing.ManeuverDepart, ""},
	"STRAIGHT":          {routing.ManeuverContinue, routing.ModifierStraight},
	"NAME_CHANGE":       {routing.ManeuverNewName, ""},
	"TURN_LEFT":         {routing.ManeuverTurn, routing.ModifierLeft},
	"TURN_RIGHT":        {routing.ManeuverTurn, routing.ModifierRight},
	"TURN_SLIGHT_LEFT":  {routing.ManeuverTurn, routing.ModifierSlightLeft},
	"TURN_SLIGHT_RIGHT": {routing.ManeuverTurn, routing.ModifierSlightRight},
	"TURN_SHARP_LEFT":   {routing.ManeuverTurn, routing.ModifierSharpLeft},
	"TURN_SHARP_RIGHT":  {routing.ManeuverTurn, routing.ModifierSharpRight},
	"UTURN_LEFT":        {routing.ManeuverTurn, routing.ModifierUTurn},
	"UTURN_RIGHT":       {routing.ManeuverTurn, routing.ModifierUTurn},
	"MERGE":             {routing.ManeuverMerge, ""},
	"RAMP_LEFT":         {routing.ManeuverOnRamp, routing.ModifierLeft},
	"RAMP_RIGHT":        {routing.ManeuverOnRamp, routing.ModifierRight},
	"FORK_LEFT":         {routing.ManeuverFork, routing.ModifierLeft},
	"FORK_RIGHT":        {routing.ManeuverFork, routing.ModifierRight},
	"ROUNDABOUT_LEFT":   {routing.ManeuverRoundaboutTurn, routing.ModifierLeft},
	"ROUNDABOUT_RIGHT":  {routing.ManeuverRoundaboutTurn, routing.ModifierRight},
}

func translateManeuver(maneuver string) (string, string) {
	if m, ok := maneuvers[maneuver]; ok {
		return m[0], m[1]
	}
	// MANEUVER_UNSPECIFIED, FERRY, FERRY_TRAIN
	return routing.ManeuverContinue, routing.ModifierStraight
}

// streetName extracts the road from instructions like "Turn left onto Main St"
func streetName(instructions string) string {
	first := strings.SplitN(instructions, "\n", 2)[0]
	for _, marker := range []string{" onto ", " on "} {
		if i := strings.LastIndex(first, marker); i >= 0 {
			return strings.TrimSpace(first[i+len(marker):])
		}
	}
	return ""
}

// parseDuration parses Google's duration format like "450s" to seconds
func parseDuration(durationStr string) (float64, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	return strconv.ParseFloat(strings.TrimSuffix(durationStr, "s"), 64)
}

// RoutesResponse represents the API response structure
type RoutesResponse struct {
	Routes []Route `json:"routes"`
}

// Route represents a single route in the response
type Route struct {
	Duration       string   `json:"duration"`
	DistanceMeters int32    `json:"distanceMeters"`
	Polyline       Polyline `json:"polyline"`
	Legs           []Leg    `json:"legs"`
}

// Polyline represents the route polyline
type Polyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}

// Leg is the travel between two waypoints
type Leg struct {
	EndLocation *Location `json:"endLocation,omitempty"`
	Steps       []Step    `json:"steps"`
}

// Step is a single navigation segment of a leg
type Step struct {
	DistanceMeters        int32                 `json:"distanceMeters"`
	StaticDuration        string                `json:"staticDuration"`
	StartLocation         Location              `json:"startLocation"`
	NavigationInstruction NavigationInstruction `json:"navigationInstruction"`
}

// NavigationInstruction carries the maneuver enum and rendered text
type NavigationInstruction struct {
	Maneuver     string `json:"maneuver"`
	Instructions string `json:"instructions"`
}

// Location wraps a lat/lng pair
type Location struct {
	LatLng LatLng `json:"latLng"`
}

// LatLng is a WGS84 position
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (l Location) coordinate() geo.Coordinate {
	return geo.NewCoordinate(l.LatLng.Longitude, l.LatLng.Latitude)
}
