package location

import (
	"context"
	"sync"
	"time"

	"pickme-client/internal/models"
)

// Static is a Provider with a fixed, manually movable position
type Static struct {
	mu        sync.Mutex
	pos       models.Position
	granted   bool
	enabled   bool
	listeners map[chan models.Position]struct{}
	now       func() time.Time
}

// NewStatic creates a provider at c with permission granted and services enabled
func NewStatic(c models.Coordinate) *Static {
	return &Static{
		pos:       models.Position{Coordinate: c},
		granted:   true,
		enabled:   true,
		listeners: make(map[chan models.Position]struct{}),
		now:       time.Now,
	}
}

// SetPermission changes what RequestPermission returns
func (s *Static) SetPermission(granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted = granted
}

// SetServicesEnabled changes what ServicesEnabled returns
func (s *Static) SetServicesEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Move sets a new position and pushes it to active subscriptions
func (s *Static) Move(c models.Coordinate) {
	s.mu.Lock()
	s.pos = models.Position{Coordinate: c, Timestamp: s.now().UnixMilli()}
	pos := s.pos
	listeners := make([]chan models.Position, 0, len(s.listeners))
	for l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		select {
		case <-l:
		default:
		}
		select {
		case l <- pos:
		default:
		}
	}
}

func (s *Static) RequestPermission(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted, nil
}

func (s *Static) ServicesEnabled(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled, nil
}

func (s *Static) CurrentPosition(ctx context.Context) (models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, nil
}

// Watch delivers the current position, then every Move that passes opts
func (s *Static) Watch(ctx context.Context, opts WatchOptions) (Subscription, error) {
	sub, ctx := newSubscription(ctx)

	l := make(chan models.Position, 1)
	s.mu.Lock()
	s.listeners[l] = struct{}{}
	l <- s.pos
	s.mu.Unlock()

	go func() {
		defer sub.finish()
		defer func() {
			s.mu.Lock()
			delete(s.listeners, l)
			s.mu.Unlock()
		}()
		sub.run(ctx, opts, func(ctx context.Context) (models.Position, error) {
			select {
			case p := <-l:
				return p, nil
			case <-ctx.Done():
				return models.Position{}, ctx.Err()
			}
		}, s.now)
	}()

	return sub, nil
}

// Listeners returns the number of live subscriptions
func (s *Static) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
