// Package location models the device location capability: permission,
// service checks, one-shot fixes and continuous subscriptions.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pickme-client/internal/geo"
	"pickme-client/internal/models"
)

var (
	ErrPermissionDenied = errors.New("location permission is required to show your location on the map")
	ErrServicesDisabled = errors.New("location services are disabled, enable them in your device settings")
	// ErrUpdatesEnded is returned by watchers whose source stopped sending positions
	ErrUpdatesEnded = errors.New("location updates stopped, the location source closed")
)

// WatchOptions are the thresholds an update must pass before it is delivered
type WatchOptions struct {
	TimeInterval     time.Duration
	DistanceInterval float64 // meters
}

// Subscription is a live stream of positions. Remove is idempotent.
type Subscription interface {
	Updates() <-chan models.Position
	Remove()
}

// Provider is the device location capability
type Provider interface {
	RequestPermission(ctx context.Context) (bool, error)
	ServicesEnabled(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context) (models.Position, error)
	Watch(ctx context.Context, opts WatchOptions) (Subscription, error)
}

// Ensure runs the permission and service checks
func Ensure(ctx context.Context, p Provider) error {
	granted, err := p.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("failed to request location permission: %w", err)
	}
	if !granted {
		return ErrPermissionDenied
	}

	enabled, err := p.ServicesEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to check location services: %w", err)
	}
	if !enabled {
		return ErrServicesDisabled
	}
	return nil
}

// Acquire runs the permission and service checks, then takes one fix
func Acquire(ctx context.Context, p Provider) (models.Position, error) {
	if err := Ensure(ctx, p); err != nil {
		return models.Position{}, err
	}

	pos, err := p.CurrentPosition(ctx)
	if err != nil {
		return models.Position{}, fmt.Errorf("could not get your current location: %w", err)
	}
	return pos, nil
}

// throttle decides which raw positions a subscription delivers
type throttle struct {
	opts   WatchOptions
	last   *models.Position
	lastAt time.Time
}

func (t *throttle) accept(p models.Position, now time.Time) bool {
	if !geo.ValidCoordinate(p.Latitude, p.Longitude) {
		return false
	}
	if t.last != nil {
		if now.Sub(t.lastAt) < t.opts.TimeInterval {
			return false
		}
		if geo.HaversineKm(t.last.Coordinate, p.Coordinate)*1000 < t.opts.DistanceInterval {
			return false
		}
	}
	t.last = &p
	t.lastAt = now
	return true
}

// subscription is the channel-backed Subscription used by all providers
type subscription struct {
	ch     chan models.Position
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func newSubscription(ctx context.Context) (*subscription, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &subscription{
		ch:     make(chan models.Position, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

func (s *subscription) Updates() <-chan models.Position {
	return s.ch
}

func (s *subscription) Remove() {
	s.once.Do(s.cancel)
	<-s.done
}

// finish must be called once the provider goroutine has released its resources
func (s *subscription) finish() {
	close(s.done)
}

// run pumps positions from next into the channel until ctx ends or next fails
func (s *subscription) run(ctx context.Context, opts WatchOptions, next func(ctx context.Context) (models.Position, error), now func() time.Time) {
	defer close(s.ch)

	th := &throttle{opts: opts}
	for {
		pos, err := next(ctx)
		if err != nil {
			return
		}
		if !th.accept(pos, now()) {
			continue
		}
		// keep only the newest undelivered fix
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- pos:
		case <-ctx.Done():
			return
		}
	}
}
