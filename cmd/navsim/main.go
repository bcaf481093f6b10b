package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dpup/delivery-guidance/internal/cache"
	"github.com/dpup/delivery-guidance/internal/clients/google"
	"github.com/dpup/delivery-guidance/internal/clients/osrm"
	"github.com/dpup/delivery-guidance/internal/config"
	"github.com/dpup/delivery-guidance/internal/guidance"
	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/lib/routing"
	"github.com/dpup/delivery-guidance/internal/services"
)

var (
	configPath string
	originStr  string
	destStr    string
	label      string
	kmlPath    string
)

var rootCmd = &cobra.Command{
	Use:   "navsim",
	Short: "Simulate a guided delivery drive",
	Long: `navsim starts turn-by-turn guidance between two coordinates and replays a
drive along the returned route, logging instructions, camera moves and state
changes as they happen.

Configuration is read from the YAML file given with --config and NAV__
environment variables (NAV__DIRECTIONS__PROVIDER=google). A .env file in the
working directory is loaded first if present.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.Flags().StringVarP(&originStr, "origin", "o", "5.3600,-4.0083", "origin coordinates (lat,lon)")
	rootCmd.Flags().StringVarP(&destStr, "dest", "d", "5.3484,-3.9962", "destination coordinates (lat,lon)")
	rootCmd.Flags().StringVarP(&label, "label", "l", "Customer", "destination label used in announcements")
	rootCmd.Flags().StringVar(&kmlPath, "kml", "", "write the initial route to this KML file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.With(ctx, logging.NewDevLogger())

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	origin, err := parseCoordinate(originStr)
	if err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}
	destination, err := parseCoordinate(destStr)
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	routeCache, err := newRouteCache(ctx, cfg)
	if err != nil {
		return err
	}

	camera := guidance.NewCameraFollowController(&logRenderer{ctx: ctx}, guidance.RealClock{}, guidance.CameraSettings{
		DebounceWindow:        cfg.Camera.DebounceWindow,
		MinDisplacementMeters: cfg.Camera.MinDisplacementMeters,
		Zoom:                  cfg.Camera.Zoom,
		Pitch:                 cfg.Camera.Pitch,
	})
	defer camera.Close()

	driveCtx, endDrive := context.WithCancel(ctx)
	defer endDrive()

	announcer := &announcer{}
	scheduler := guidance.NewScheduler(provider,
		guidance.WithCache(routeCache),
		guidance.WithCamera(camera),
		guidance.WithListener(announcer),
		guidance.WithListener(guidance.ListenerFunc(func(ctx context.Context, event guidance.Event) {
			if event.Type == guidance.EventStateChanged && event.State != guidance.StateNavigating && event.Previous == guidance.StateNavigating {
				endDrive()
			}
		})),
		guidance.WithPolicy(guidance.Policy{
			RefreshInterval:           cfg.Guidance.RefreshInterval,
			ArrivalThresholdMeters:    cfg.Guidance.ArrivalThresholdMeters,
			RerouteDeviationMeters:    cfg.Guidance.RerouteDeviationMeters,
			BearingDisplacementMeters: cfg.Camera.MinDisplacementMeters,
		}),
	)
	announcer.scheduler = scheduler
	defer scheduler.Cancel(context.WithoutCancel(ctx))

	session, err := scheduler.Start(ctx, origin, guidance.Target{Location: destination, Label: label})
	if err != nil {
		return err
	}
	if !session.Navigating() {
		logging.Infow(ctx, "navsim: already at destination", "outcome", scheduler.LastOutcome())
		return nil
	}

	if kmlPath != "" {
		if err := writeKML(kmlPath, session.Route, session.Label()); err != nil {
			return err
		}
		logging.Infow(ctx, "navsim: wrote route", "path", kmlPath)
	}

	g, gctx := errgroup.WithContext(driveCtx)

	if cfg.Metrics.Addr != "" {
		server := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler()}
		g.Go(func() error {
			logging.Infow(ctx, "navsim: serving metrics", "addr", cfg.Metrics.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	replay := services.NewPositionReplay(guidance.RealClock{}, cfg.Simulation.SpeedMetersPerSecond, cfg.Simulation.FixInterval)
	g.Go(func() error {
		err := replay.Run(gctx, session.Route.Geometry, scheduler)
		// Ending the drive also stops the metrics server
		endDrive()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logging.Infow(ctx, "navsim: drive finished", "outcome", scheduler.LastOutcome())
	return nil
}

func newProvider(cfg *config.Config) (guidance.Provider, error) {
	switch cfg.Directions.Provider {
	case "google":
		return google.NewClientWithHTTPDoer(cfg.Directions.Google.APIKey, cfg.Directions.Google.BaseURL,
			&http.Client{Timeout: cfg.Directions.Timeout}), nil
	case "osrm":
		return osrm.NewClient(cfg.Directions.OSRM.BaseURL, cfg.Directions.OSRM.Profile, cfg.Directions.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown directions provider %q", cfg.Directions.Provider)
	}
}

func newRouteCache(ctx context.Context, cfg *config.Config) (*cache.RouteCache, error) {
	if cfg.Cache.Path == "" {
		return cache.NewRouteCache(cache.NewMemoryStore()), nil
	}
	store, err := cache.OpenFileStore(cfg.Cache.Path)
	if err != nil {
		return nil, err
	}
	logging.Infow(ctx, "navsim: using route cache", "path", store.Path())
	return cache.NewRouteCache(store), nil
}

func writeKML(path string, route *routing.Route, name string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := routing.WriteKML(f, route, name); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseCoordinate(s string) (geo.Coordinate, error) {
	var lat, lon float64
	if _, err := fmt.Sscanf(s, "%f,%f", &lat, &lon); err != nil {
		return geo.Coordinate{}, err
	}
	c := geo.NewCoordinate(lon, lat)
	if !c.Valid() {
		return geo.Coordinate{}, fmt.Errorf("%q is out of range", s)
	}
	return c, nil
}
