package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pickme-client/internal/geo"
	"pickme-client/internal/handlers"
	"pickme-client/internal/location"
	"pickme-client/internal/models"
	"pickme-client/internal/render"
	"pickme-client/internal/services"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// viewerFlags control the local web map viewer
type viewerFlags struct {
	web bool
}

func (v *viewerFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&v.web, "web", false, "Serve the live map viewer (also enabled by viewer.enabled)")
}

// renderers returns the console renderer plus the viewer hub when the viewer is on
func (v *viewerFlags) renderers(cmd *cobra.Command, a *app) (render.Renderer, *services.WSHub) {
	console := render.NewConsole(cmd.OutOrStdout())
	if !v.web && !a.cfg.Viewer.Enabled {
		return console, nil
	}
	hub := services.NewWSHub()
	return render.Multi{console, hub}, hub
}

// serveViewer runs the viewer until ctx ends
func serveViewer(ctx context.Context, a *app, hub *services.WSHub, focus handlers.Focuser) error {
	srv := &http.Server{
		Addr:         a.cfg.Viewer.ViewerAddr(),
		Handler:      handlers.NewViewerRouter(hub, focus, a.cfg.Viewer.Token, a.registry),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down map viewer...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Map viewer forced to shutdown")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("Starting map viewer")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("map viewer failed: %w", err)
	}
	return nil
}

// awaitTracking blocks until ctx ends or the tracker's location source closes
func awaitTracking(ctx context.Context, tracker *services.LiveTracker) error {
	select {
	case <-ctx.Done():
		return nil
	case <-tracker.Done():
		if ctx.Err() != nil {
			return nil
		}
		return location.ErrUpdatesEnded
	}
}

func newMapCommand(opts *rootOptions) *cobra.Command {
	var (
		pos    positionFlags
		viewer viewerFlags
	)

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Follow pick requests around you as you move",
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			provider := pos.provider(cmd, a.location)
			fix, err := location.Acquire(ctx, provider)
			if err != nil {
				return err
			}

			renderer, hub := viewer.renderers(cmd, a)
			poller := a.nearbyPoller()
			defer poller.Stop()
			poller.Subscribe(func(requests []models.PickRequest, err error) {
				if err != nil {
					renderer.ShowError(err)
				}
				renderer.ShowMarkers(requests)
			})

			renderer.ShowRegion(geo.RegionForRadius(fix.Coordinate, a.cfg.Nearby.RadiusMeters))
			if _, err := poller.Start(ctx, fix.Coordinate); err != nil {
				log.Warn().Err(err).Msg("Initial nearby fetch failed")
			}

			sub, err := provider.Watch(ctx, a.watchOptions())
			if err != nil {
				return err
			}
			defer sub.Remove()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				for p := range sub.Updates() {
					poller.SetCoordinate(ctx, p.Coordinate)
					renderer.ShowRegion(geo.RegionForRadius(p.Coordinate, a.cfg.Nearby.RadiusMeters))
				}
				if ctx.Err() != nil {
					return nil
				}
				return location.ErrUpdatesEnded
			})
			if hub != nil {
				g.Go(func() error {
					return serveViewer(ctx, a, hub, poller)
				})
			}
			g.Go(func() error {
				<-ctx.Done()
				sub.Remove()
				return nil
			})
			return g.Wait()
		}),
	}

	pos.register(cmd)
	viewer.register(cmd)
	return cmd
}

func newTrackCommand(opts *rootOptions) *cobra.Command {
	var (
		viewer        viewerFlags
		pickRequestID int64
	)

	cmd := &cobra.Command{
		Use:   "track [match-id]",
		Short: "Live distance to the meeting point of an accepted match",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			book := a.matchBook(nil)

			var m models.Match
			switch {
			case len(args) == 1:
				id, err := parseID(args[0], "match id")
				if err != nil {
					return err
				}
				if m, err = book.FindMatch(ctx, id); err != nil {
					return err
				}
			case pickRequestID > 0:
				// matches derived from pick requests carry no match id
				m = models.Match{PickRequestID: pickRequestID}
			default:
				return errors.New("give a match id or --pick-request")
			}

			destination, err := book.Destination(ctx, m)
			if err != nil {
				return err
			}

			renderer, hub := viewer.renderers(cmd, a)
			tracker := services.NewLiveTracker(a.location, a.watchOptions(), renderer, a.metrics)
			if err := tracker.Start(ctx, destination); err != nil {
				return err
			}
			defer tracker.Stop()

			g, ctx := errgroup.WithContext(ctx)
			if hub != nil {
				g.Go(func() error {
					return serveViewer(ctx, a, hub, nil)
				})
			}
			g.Go(func() error {
				return awaitTracking(ctx, tracker)
			})
			return g.Wait()
		}),
	}

	viewer.register(cmd)
	cmd.Flags().Int64Var(&pickRequestID, "pick-request", 0, "Track toward one of your pick requests directly")
	return cmd
}
