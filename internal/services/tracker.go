package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pickme-client/internal/geo"
	"pickme-client/internal/location"
	"pickme-client/internal/metrics"
	"pickme-client/internal/models"
	"pickme-client/internal/render"

	"github.com/rs/zerolog/log"
)

// ErrInvalidDestination is returned when tracking toward an unrenderable coordinate
var ErrInvalidDestination = errors.New("destination has invalid coordinates")

// LiveTracker follows the device position toward a destination and keeps the
// map framed on both. It owns at most one location subscription.
type LiveTracker struct {
	provider location.Provider
	opts     location.WatchOptions
	renderer render.Renderer
	metrics  metrics.Recorder

	// mu serializes Start and Stop
	mu   sync.Mutex
	sub  location.Subscription
	done chan struct{}

	stateMu sync.RWMutex
	last    *render.Tracking
}

// NewLiveTracker creates a tracker; rec may be nil
func NewLiveTracker(provider location.Provider, opts location.WatchOptions, renderer render.Renderer, rec metrics.Recorder) *LiveTracker {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &LiveTracker{
		provider: provider,
		opts:     opts,
		renderer: renderer,
		metrics:  rec,
	}
}

// Start subscribes to location updates toward destination, replacing any
// running subscription. Updates stop when ctx ends or Stop is called.
func (t *LiveTracker) Start(ctx context.Context, destination models.Coordinate) error {
	if !geo.ValidCoordinate(destination.Latitude, destination.Longitude) {
		return ErrInvalidDestination
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	if err := location.Ensure(ctx, t.provider); err != nil {
		return err
	}

	sub, err := t.provider.Watch(ctx, t.opts)
	if err != nil {
		return fmt.Errorf("failed to watch location: %w", err)
	}

	done := make(chan struct{})
	t.sub = sub
	t.done = done

	go func() {
		defer close(done)
		for pos := range sub.Updates() {
			t.apply(pos.Coordinate, destination)
		}
	}()

	log.Info().
		Float64("latitude", destination.Latitude).
		Float64("longitude", destination.Longitude).
		Msg("Tracking started")
	return nil
}

// Stop disposes the running subscription, if any. It is idempotent.
func (t *LiveTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *LiveTracker) stopLocked() {
	if t.sub == nil {
		return
	}
	t.sub.Remove()
	<-t.done
	t.sub = nil
	t.done = nil
	log.Info().Msg("Tracking stopped")
}

// Active reports whether a subscription is still delivering updates. It turns
// false once Stop is called, the Start ctx ends or the location source closes.
func (t *LiveTracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the current subscription ends. With no
// subscription the channel is already closed.
func (t *LiveTracker) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return t.done
}

// Last returns the most recent recomputation
func (t *LiveTracker) Last() (render.Tracking, bool) {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	if t.last == nil {
		return render.Tracking{}, false
	}
	return *t.last, true
}

func (t *LiveTracker) apply(position, destination models.Coordinate) {
	km := geo.HaversineKm(position, destination)
	update := render.Tracking{
		Position:    position,
		Destination: destination,
		Region:      geo.FrameRegion(position, destination),
		DistanceKm:  geo.RoundKm(km),
	}

	t.stateMu.Lock()
	t.last = &update
	t.stateMu.Unlock()

	t.metrics.RecordTrackingUpdate(km)
	if t.renderer != nil {
		t.renderer.ShowRegion(update.Region)
		t.renderer.ShowTracking(update)
	}
}
