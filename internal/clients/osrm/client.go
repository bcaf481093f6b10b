package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/lib/routing"
)

// HTTPDoer is the subset of *http.Client used by the client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client requests driving directions from an OSRM route service
type Client struct {
	baseURL    string
	profile    string
	httpClient HTTPDoer
}

// NewClient creates a new OSRM client
func NewClient(baseURL, profile string, timeout time.Duration) *Client {
	return NewClientWithHTTPDoer(baseURL, profile, &http.Client{Timeout: timeout})
}

// NewClientWithHTTPDoer creates a client using the given HTTP implementation
func NewClientWithHTTPDoer(baseURL, profile string, doer HTTPDoer) *Client {
	if profile == "" {
		profile = "driving"
	}
	return &Client{
		baseURL:    baseURL,
		profile:    profile,
		httpClient: doer,
	}
}

// Route requests a single route with turn-by-turn steps between origin and
// destination.
func (c *Client) Route(ctx context.Context, origin, destination geo.Coordinate) (*routing.RawRoute, error) {
	endpoint := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f",
		c.baseURL, url.PathEscape(c.profile),
		origin.Longitude, origin.Latitude, destination.Longitude, destination.Latitude)

	query := url.Values{}
	query.Set("overview", "full")
	query.Set("geometries", "polyline")
	query.Set("steps", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed routeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("OSRM returned %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// OSRM reports routing failures (NoRoute, InvalidQuery) in the body
	if resp.StatusCode != http.StatusOK || parsed.Code != "Ok" {
		return nil, fmt.Errorf("OSRM returned %d (%s): %s", resp.StatusCode, parsed.Code, parsed.Message)
	}
	if len(parsed.Routes) == 0 {
		return nil, fmt.Errorf("no routes found in response")
	}

	return convertRoute(parsed.Routes[0])
}

func convertRoute(route osrmRoute) (*routing.RawRoute, error) {
	geometry, err := geo.DecodePolyline(route.Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to decode geometry: %w", err)
	}

	raw := &routing.RawRoute{
		Geometry:        geometry,
		DistanceMeters:  route.Distance,
		DurationSeconds: route.Duration,
	}
	for _, leg := range route.Legs {
		rawLeg := routing.RawLeg{}
		for _, step := range leg.Steps {
			rawLeg.Steps = append(rawLeg.Steps, routing.RawStep{
				ManeuverType:    step.Maneuver.Type,
				Modifier:        step.Maneuver.Modifier,
				Name:            step.Name,
				DistanceMeters:  step.Distance,
				DurationSeconds: step.Duration,
				Location:        step.Maneuver.coordinate(),
			})
		}
		raw.Legs = append(raw.Legs, rawLeg)
	}
	return raw, nil
}

// routeResponse is the OSRM route service response
type routeResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message,omitempty"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Geometry string    `json:"geometry"`
	Distance float64   `json:"distance"`
	Duration float64   `json:"duration"`
	Legs     []osrmLeg `json:"legs"`
}

type osrmLeg struct {
	Steps []osrmStep `json:"steps"`
}

type osrmStep struct {
	Name     string       `json:"name"`
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Maneuver osrmManeuver `json:"maneuver"`
}

type osrmManeuver struct {
	Type     string    `json:"type"`
	Modifier string    `json:"modifier,omitempty"`
	Location []float64 `json:"location"` // [lon, lat]
}

func (m osrmManeuver) coordinate() geo.Coordinate {
	if len(m.Location) < 2 {
		return geo.Coordinate{}
	}
	return geo.NewCoordinate(m.Location[0], m.Location[1])
}
