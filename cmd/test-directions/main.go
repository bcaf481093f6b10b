package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dpup/delivery-guidance/internal/clients/google"
	"github.com/dpup/delivery-guidance/internal/clients/osrm"
	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/lib/routing"
)

var (
	provider  string
	apiKey    string
	baseURL   string
	originStr string
	destStr   string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "test-directions",
	Short: "Fetch a route from a directions provider and print the parsed steps",
	Example: `  test-directions --provider=osrm
  test-directions --provider=google --api-key=YOUR_KEY
  GOOGLE_ROUTES_API_KEY=your_key test-directions --provider=google --origin="5.3167,-4.0333"`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&provider, "provider", "p", "osrm", "directions provider (osrm or google)")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "Google Routes API key (or set GOOGLE_ROUTES_API_KEY env var)")
	rootCmd.Flags().StringVar(&baseURL, "base-url", "", "override the provider base URL")
	rootCmd.Flags().StringVarP(&originStr, "origin", "o", "5.3600,-4.0083", "origin coordinates (lat,lon)")
	rootCmd.Flags().StringVarP(&destStr, "dest", "d", "5.3484,-3.9962", "destination coordinates (lat,lon)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type directions interface {
	Route(ctx context.Context, origin, destination geo.Coordinate) (*routing.RawRoute, error)
}

func run(cmd *cobra.Command, args []string) error {
	var origin, destination geo.Coordinate
	if _, err := fmt.Sscanf(originStr, "%f,%f", &origin.Latitude, &origin.Longitude); err != nil {
		return fmt.Errorf("invalid origin coordinates: %w", err)
	}
	if _, err := fmt.Sscanf(destStr, "%f,%f", &destination.Latitude, &destination.Longitude); err != nil {
		return fmt.Errorf("invalid destination coordinates: %w", err)
	}

	var client directions
	switch provider {
	case "osrm":
		url := baseURL
		if url == "" {
			url = "https://router.project-osrm.org"
		}
		client = osrm.NewClient(url, "driving", timeout)
	case "google":
		key := apiKey
		if key == "" {
			key = os.Getenv("GOOGLE_ROUTES_API_KEY")
		}
		if key == "" {
			return fmt.Errorf("google routes API key required: use --api-key or GOOGLE_ROUTES_API_KEY")
		}
		url := baseURL
		if url == "" {
			url = "https://routes.googleapis.com"
		}
		client = google.NewClientWithHTTPDoer(key, url, &http.Client{Timeout: timeout})
	default:
		return fmt.Errorf("unknown provider %q", provider)
	}

	fmt.Printf("Directions Test (%s)\n", provider)
	fmt.Printf("======================\n")
	fmt.Printf("Origin: %.6f, %.6f\n", origin.Latitude, origin.Longitude)
	fmt.Printf("Destination: %.6f, %.6f\n\n", destination.Latitude, destination.Longitude)

	raw, err := client.Route(cmd.Context(), origin, destination)
	if err != nil {
		return fmt.Errorf("route request failed: %w", err)
	}
	route := routing.ParseRoute(*raw)

	fmt.Printf("Distance: %.2f km\n", route.TotalDistanceMeters/1000.0)
	fmt.Printf("Duration: %.1f minutes\n", route.TotalDurationSeconds/60.0)
	fmt.Printf("Geometry: %d points\n", len(route.Geometry))
	if !route.HasGuidance() {
		fmt.Printf("No maneuver steps (geometry-only route)\n")
		return nil
	}

	fmt.Printf("Steps: %d\n\n", len(route.Steps))
	for _, step := range route.Steps {
		fmt.Printf("  %-6s %7.0f m  %s\n", step.ID, step.CumulativeDistanceMeters, step.InstructionText)
	}
	return nil
}
