package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pickme-client/internal/api"
	"pickme-client/internal/api/apitest"
	"pickme-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (t staticToken) Token(context.Context) (string, error) { return string(t), nil }

var here = models.Coordinate{Latitude: 50.8503, Longitude: 4.3517}

func ptr[T any](v T) *T { return &v }

func nearbyOpts() NearbyOptions {
	return NearbyOptions{RadiusMeters: 5000, FetchTimeout: 2 * time.Second, FocusDebounce: 20 * time.Millisecond}
}

// authedClient returns a client logged in as a fresh user on srv
func authedClient(t *testing.T, srv *apitest.Server, email string) (*api.Client, int64) {
	t.Helper()
	id := srv.AddUser(email, "secret", email)
	token := srv.TokenFor(email)
	require.NotEmpty(t, token)
	return api.NewClient(srv.URL, srv.Client(), staticToken(token), nil), id
}

func seedNearby(srv *apitest.Server, ownerID int64) (valid int64) {
	valid = srv.AddPickRequest(models.PickRequest{
		UserID: ownerID, UserName: "Bob", ActivityType: models.ActivityCoffee, DurationMinutes: 30,
		Latitude: ptr(50.851), Longitude: ptr(4.352),
	})
	srv.AddPickRequest(models.PickRequest{
		UserID: ownerID, UserName: "Broken", ActivityType: models.ActivityWalk, DurationMinutes: 30,
		Latitude: nil, Longitude: ptr(4.352),
	})
	return valid
}

func TestNearbyPoller_RefreshFiltersInvalidCoordinates(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	client, _ := authedClient(t, srv, "alice@example.com")
	bob := srv.AddUser("bob@example.com", "secret", "Bob")
	valid := seedNearby(srv, bob)

	p := NewNearbyPoller(client, nearbyOpts(), nil)
	var notified []models.PickRequest
	p.Subscribe(func(requests []models.PickRequest, err error) {
		require.NoError(t, err)
		notified = requests
	})

	_, err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrLocationUnknown)
	assert.Zero(t, srv.Calls("GET /api/pick-requests/nearby"))

	p.mu.Lock()
	p.coord = &here
	p.mu.Unlock()

	requests, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, valid, requests[0].PickRequestID)
	assert.Equal(t, requests, notified)
	assert.Equal(t, requests, p.Requests())
}

func TestNearbyPoller_DropsTriggerWhileInFlight(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	client, _ := authedClient(t, srv, "alice@example.com")
	srv.NearbyGate = make(chan struct{})

	p := NewNearbyPoller(client, nearbyOpts(), nil)
	p.mu.Lock()
	p.coord = &here
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.Refresh(context.Background())
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		return srv.Calls("GET /api/pick-requests/nearby") == 1
	}, time.Second, 5*time.Millisecond)

	_, err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrFetchInProgress)
	p.Focus(context.Background())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, srv.Calls("GET /api/pick-requests/nearby"))

	close(srv.NearbyGate)
	wg.Wait()

	_, err = p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Calls("GET /api/pick-requests/nearby"))
}

type blockingFetcher struct {
	release chan struct{}
}

func (b blockingFetcher) NearbyPickRequests(context.Context, float64, float64, float64) ([]models.PickRequest, error) {
	<-b.release
	return []models.PickRequest{{PickRequestID: 1, Latitude: ptr(1.0), Longitude: ptr(1.0)}}, nil
}

type scriptedFetcher struct {
	mu      sync.Mutex
	results [][]models.PickRequest
	errs    []error
}

func (s *scriptedFetcher) NearbyPickRequests(context.Context, float64, float64, float64) ([]models.PickRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.results[0], s.errs[0]
	s.results, s.errs = s.results[1:], s.errs[1:]
	return r, err
}

func TestNearbyPoller_TimeoutIsDistinctAndClearsList(t *testing.T) {
	f := blockingFetcher{release: make(chan struct{})}
	defer close(f.release)

	opts := nearbyOpts()
	opts.FetchTimeout = 30 * time.Millisecond
	p := NewNearbyPoller(f, opts, nil)
	p.mu.Lock()
	p.coord = &here
	p.requests = []models.PickRequest{{PickRequestID: 99}}
	p.mu.Unlock()

	_, err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNearbyTimeout)
	assert.Empty(t, p.Requests())
	assert.ErrorIs(t, p.Err(), ErrNearbyTimeout)
}

func TestNearbyPoller_FailureClearsStaleList(t *testing.T) {
	boom := errors.New("boom")
	f := &scriptedFetcher{
		results: [][]models.PickRequest{
			{{PickRequestID: 1, Latitude: ptr(1.0), Longitude: ptr(1.0)}},
			nil,
		},
		errs: []error{nil, boom},
	}
	p := NewNearbyPoller(f, nearbyOpts(), nil)
	p.mu.Lock()
	p.coord = &here
	p.mu.Unlock()

	_, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, p.Requests(), 1)

	var gotErr error
	p.Subscribe(func(requests []models.PickRequest, err error) {
		assert.Empty(t, requests)
		gotErr = err
	})

	_, err = p.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNearbyTimeout)
	assert.ErrorIs(t, gotErr, boom)
	assert.Empty(t, p.Requests())
}

func TestNearbyPoller_CoordinateChangeAndFocusTrigger(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	client, _ := authedClient(t, srv, "alice@example.com")

	p := NewNearbyPoller(client, nearbyOpts(), nil)
	defer p.Stop()
	ctx := context.Background()

	var completed atomic.Int32
	p.Subscribe(func([]models.PickRequest, error) { completed.Add(1) })

	p.SetCoordinate(ctx, here)
	require.Eventually(t, func() bool { return completed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, srv.Calls("GET /api/pick-requests/nearby"))

	// unchanged coordinate is not a trigger
	p.SetCoordinate(ctx, here)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, srv.Calls("GET /api/pick-requests/nearby"))

	// a burst of focus events collapses into one fetch
	for i := 0; i < 5; i++ {
		p.Focus(ctx)
	}
	require.Eventually(t, func() bool { return completed.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, srv.Calls("GET /api/pick-requests/nearby"))
}

func TestNearbyPoller_Invalidate(t *testing.T) {
	p := NewNearbyPoller(nil, nearbyOpts(), nil)
	p.requests = []models.PickRequest{{PickRequestID: 1}, {PickRequestID: 2}}

	calls := 0
	p.Subscribe(func([]models.PickRequest, error) { calls++ })

	p.Invalidate(1)
	assert.Equal(t, []models.PickRequest{{PickRequestID: 2}}, p.Requests())
	assert.Equal(t, 1, calls)

	p.Invalidate(42)
	assert.Equal(t, 1, calls)
}
