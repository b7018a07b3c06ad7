package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"pickme-client/internal/geo"
	"pickme-client/internal/metrics"
	"pickme-client/internal/models"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNearbyTimeout is returned when the backend does not answer within the fetch timeout
	ErrNearbyTimeout = errors.New("loading nearby pick requests timed out")
	// ErrFetchInProgress is returned when a refresh is dropped because another is running
	ErrFetchInProgress = errors.New("a nearby fetch is already in progress")
	// ErrLocationUnknown is returned when no coordinate has been set yet
	ErrLocationUnknown = errors.New("current location is unknown")
)

// NearbyFetcher loads pick requests around a point
type NearbyFetcher interface {
	NearbyPickRequests(ctx context.Context, latitude, longitude, radiusMeters float64) ([]models.PickRequest, error)
}

// NearbyOptions configures a NearbyPoller
type NearbyOptions struct {
	RadiusMeters  float64
	FetchTimeout  time.Duration
	FocusDebounce time.Duration
}

// NearbyListener receives the display list after every completed fetch.
// err is non-nil when the fetch failed; requests is then empty.
type NearbyListener func(requests []models.PickRequest, err error)

// NearbyPoller keeps the list of pick requests around the user's position.
// At most one fetch runs at a time; triggers that arrive meanwhile are dropped.
type NearbyPoller struct {
	fetcher NearbyFetcher
	opts    NearbyOptions
	metrics metrics.Recorder

	mu         sync.Mutex
	inFlight   bool
	coord      *models.Coordinate
	requests   []models.PickRequest
	lastErr    error
	listeners  []NearbyListener
	focusTimer *time.Timer
}

// NewNearbyPoller creates a poller; rec may be nil
func NewNearbyPoller(fetcher NearbyFetcher, opts NearbyOptions, rec metrics.Recorder) *NearbyPoller {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &NearbyPoller{
		fetcher: fetcher,
		opts:    opts,
		metrics: rec,
	}
}

// Subscribe registers fn for display list updates
func (p *NearbyPoller) Subscribe(fn NearbyListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Start sets the initial position and runs the first fetch synchronously
func (p *NearbyPoller) Start(ctx context.Context, c models.Coordinate) ([]models.PickRequest, error) {
	p.mu.Lock()
	p.coord = &c
	p.mu.Unlock()
	return p.Refresh(ctx)
}

// SetCoordinate updates the user's position and triggers a fetch when it changed
func (p *NearbyPoller) SetCoordinate(ctx context.Context, c models.Coordinate) {
	p.mu.Lock()
	changed := p.coord == nil || *p.coord != c
	p.coord = &c
	p.mu.Unlock()

	if changed {
		p.trigger(ctx, "coordinate")
	}
}

// Focus schedules a fetch after the debounce delay. Repeated calls within the
// delay collapse into a single fetch.
func (p *NearbyPoller) Focus(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.focusTimer != nil {
		p.focusTimer.Stop()
	}
	p.focusTimer = time.AfterFunc(p.opts.FocusDebounce, func() {
		p.trigger(ctx, "focus")
	})
}

// Stop cancels a pending focus refresh
func (p *NearbyPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.focusTimer != nil {
		p.focusTimer.Stop()
		p.focusTimer = nil
	}
}

func (p *NearbyPoller) trigger(ctx context.Context, reason string) {
	go func() {
		if _, err := p.Refresh(ctx); err != nil && !errors.Is(err, ErrFetchInProgress) {
			log.Warn().Err(err).Str("trigger", reason).Msg("Nearby refresh failed")
		}
	}()
}

// Refresh fetches pick requests around the current coordinate and returns the
// display list. It returns ErrFetchInProgress without any network call when a
// fetch is already running. On failure the display list is cleared.
func (p *NearbyPoller) Refresh(ctx context.Context) ([]models.PickRequest, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		p.metrics.RecordNearbyFetch(metrics.OutcomeDropped)
		log.Debug().Msg("Nearby fetch already in flight, dropping trigger")
		return nil, ErrFetchInProgress
	}
	if p.coord == nil {
		p.mu.Unlock()
		return nil, ErrLocationUnknown
	}
	p.inFlight = true
	coord := *p.coord
	p.mu.Unlock()

	requests, err := p.fetch(ctx, coord)

	p.mu.Lock()
	p.inFlight = false
	if err != nil {
		p.requests = nil
		p.lastErr = err
	} else {
		p.requests = requests
		p.lastErr = nil
	}
	p.mu.Unlock()

	p.notify(requests, err)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

type nearbyResult struct {
	requests []models.PickRequest
	err      error
}

// fetch races the network call against the client-side timeout
func (p *NearbyPoller) fetch(ctx context.Context, c models.Coordinate) ([]models.PickRequest, error) {
	fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	done := make(chan nearbyResult, 1)
	go func() {
		r, err := p.fetcher.NearbyPickRequests(fctx, c.Latitude, c.Longitude, p.opts.RadiusMeters)
		done <- nearbyResult{requests: r, err: err}
	}()

	var res nearbyResult
	select {
	case res = <-done:
	case <-fctx.Done():
		res.err = fctx.Err()
	}

	if res.err != nil {
		if errors.Is(fctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			p.metrics.RecordNearbyFetch(metrics.OutcomeTimeout)
			log.Warn().Dur("timeout", p.opts.FetchTimeout).Msg("Nearby fetch timed out")
			return nil, ErrNearbyTimeout
		}
		p.metrics.RecordNearbyFetch(metrics.OutcomeError)
		return nil, res.err
	}

	p.metrics.RecordNearbyFetch(metrics.OutcomeSuccess)
	visible := geo.FilterRenderable(res.requests)
	log.Debug().
		Int("received", len(res.requests)).
		Int("visible", len(visible)).
		Float64("latitude", c.Latitude).
		Float64("longitude", c.Longitude).
		Msg("Nearby pick requests loaded")
	return visible, nil
}

// Invalidate drops a pick request from the display list after a confirmed
// server write (e.g. a pick was sent for it)
func (p *NearbyPoller) Invalidate(pickRequestID int64) {
	p.mu.Lock()
	kept := make([]models.PickRequest, 0, len(p.requests))
	for _, r := range p.requests {
		if r.PickRequestID != pickRequestID {
			kept = append(kept, r)
		}
	}
	removed := len(kept) != len(p.requests)
	p.requests = kept
	p.mu.Unlock()

	if removed {
		p.notify(kept, nil)
	}
}

// Requests returns a copy of the display list
func (p *NearbyPoller) Requests() []models.PickRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.PickRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Coordinate returns the last known position
func (p *NearbyPoller) Coordinate() (models.Coordinate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.coord == nil {
		return models.Coordinate{}, false
	}
	return *p.coord, true
}

// Err returns the error of the last completed fetch
func (p *NearbyPoller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *NearbyPoller) notify(requests []models.PickRequest, err error) {
	p.mu.Lock()
	listeners := make([]NearbyListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(requests, err)
	}
}
