package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pickme-client/internal/api"
	"pickme-client/internal/config"
	"pickme-client/internal/location"
	"pickme-client/internal/metrics"
	"pickme-client/internal/models"
	"pickme-client/internal/repository"
	"pickme-client/internal/services"
	"pickme-client/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Run executes the pickme command line
func Run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions are the persistent flags
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "pickme",
		Short:         "Find people nearby to meet for coffee, food, a walk or anything else",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	cmd.AddCommand(
		newLoginCommand(opts),
		newRegisterCommand(opts),
		newLogoutCommand(opts),
		newWhoamiCommand(opts),
		newNearbyCommand(opts),
		newCreateCommand(opts),
		newMineCommand(opts),
		newCancelCommand(opts),
		newPickCommand(opts),
		newRespondCommand(opts),
		newMatchesCommand(opts),
		newMapCommand(opts),
		newTrackCommand(opts),
	)
	return cmd
}

// app is the wired client shared by all commands
type app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *metrics.Collector
	client   *api.Client
	session  *services.SessionStore
	location location.Provider
	shutdown func(context.Context) error
}

// newApp loads configuration, wires the client and restores the session
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(ctx, opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	setupLogger(level)

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	sessions := repository.NewSessionRepository(repository.NewFileStore(cfg.Session.Path))
	httpClient := telemetry.HTTPClient(&http.Client{Timeout: cfg.API.Timeout})
	client := api.NewClient(cfg.API.BaseURL, httpClient, sessions, collector)

	store := services.NewSessionStore(sessions, client)
	state := store.Load(ctx)
	log.Debug().Str("state", state.String()).Str("base_url", cfg.API.BaseURL).Msg("Client ready")

	return &app{
		cfg:      cfg,
		registry: registry,
		metrics:  collector,
		client:   client,
		session:  store,
		location: newLocationProvider(cfg.Location),
		shutdown: shutdown,
	}, nil
}

// close flushes telemetry
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.shutdown(ctx)
}

func newLocationProvider(cfg config.LocationConfig) location.Provider {
	if cfg.Source == "websocket" {
		return location.NewFeed(cfg.FeedURL)
	}
	return location.NewStatic(models.Coordinate{Latitude: cfg.Latitude, Longitude: cfg.Longitude})
}

func (a *app) nearbyPoller() *services.NearbyPoller {
	return services.NewNearbyPoller(a.client, services.NearbyOptions{
		RadiusMeters:  a.cfg.Nearby.RadiusMeters,
		FetchTimeout:  a.cfg.Nearby.FetchTimeout,
		FocusDebounce: a.cfg.Nearby.FocusDebounce,
	}, a.metrics)
}

func (a *app) matchBook(cache services.Invalidator) *services.MatchBook {
	return services.NewMatchBook(a.session, a.client, cache)
}

func (a *app) watchOptions() location.WatchOptions {
	return location.WatchOptions{
		TimeInterval:     a.cfg.Tracking.TimeInterval,
		DistanceInterval: a.cfg.Tracking.DistanceInterval,
	}
}

// withApp wraps a command body with app setup and teardown
func withApp(opts *rootOptions, run func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx, opts)
		if err != nil {
			return err
		}
		defer a.close()
		return userError(run(ctx, a, cmd, args))
	}
}

// userError turns known failures into the messages shown to the user
func userError(err error) error {
	var apiErr *api.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrAuthRequired):
		return errors.New("please login to continue (pickme login)")
	case errors.As(err, &apiErr):
		return errors.New(apiErr.Message)
	default:
		return err
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
