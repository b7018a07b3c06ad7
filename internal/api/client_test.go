package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pickme-client/internal/api/apitest"
	"pickme-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) Token(context.Context) (string, error) { return "", errors.New("storage unavailable") }

func f(v float64) *float64 { return &v }

func newAuthedClient(t *testing.T, srv *apitest.Server, email string) *Client {
	t.Helper()
	srv.AddUser(email, "secret", "Alice")
	return NewClient(srv.URL, srv.Client(), staticToken(srv.TokenFor(email)), nil)
}

func TestClient_Login(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	id := srv.AddUser("alice@example.com", "secret", "Alice")

	c := NewClient(srv.URL, srv.Client(), nil, nil)
	resp, err := c.Login(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)

	assert.Equal(t, id, resp.UserID)
	assert.Equal(t, "Alice", resp.Name)
	assert.NotEmpty(t, resp.Token)
}

func TestClient_Login_InvalidCredentialsCarriesServerMessage(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.AddUser("alice@example.com", "secret", "Alice")

	c := NewClient(srv.URL, srv.Client(), nil, nil)
	_, err := c.Login(context.Background(), "alice@example.com", "wrong")
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.True(t, IsUnauthorized(err))
}

func TestClient_Register_Conflict(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.AddUser("alice@example.com", "secret", "Alice")

	c := NewClient(srv.URL, srv.Client(), nil, nil)
	_, err := c.Register(context.Background(), "alice@example.com", "x", "Alice")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, StatusCode(err))
	assert.Equal(t, "Email already registered", err.Error())
}

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Write([]byte(`{"email":"a@b.c","message":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("tok123"), nil)
	_, err := c.CurrentUser(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.NotEmpty(t, gotRequestID)
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	var sawHeader bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHeader = r.Header["Authorization"]
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	for _, tokens := range []TokenSource{nil, staticToken(""), failingToken{}} {
		c := NewClient(srv.URL, srv.Client(), tokens, nil)
		_, err := c.MyPickRequests(context.Background())
		require.NoError(t, err)
		assert.False(t, sawHeader)
	}
}

func TestClient_LoginNeverSendsToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"token":"t","userId":1,"email":"a@b.c","name":"A"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticToken("stale"), nil)
	_, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_NearbyPickRequests_QueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pick-requests/nearby", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "45.5088", q.Get("latitude"))
		assert.Equal(t, "-73.5878", q.Get("longitude"))
		assert.Equal(t, "5000", q.Get("radiusMeters"))
		w.Write([]byte(`[{"pickRequestId":7,"userId":2,"userName":"Bob","activityType":"COFFEE","durationMinutes":60,"latitude":45.5,"longitude":-73.6,"distanceMeters":120.5,"createdAt":"2024-01-15T10:30:00"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil, nil)
	out, err := c.NearbyPickRequests(context.Background(), 45.5088, -73.5878, 5000)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(7), out[0].PickRequestID)
	assert.Equal(t, models.ActivityCoffee, out[0].ActivityType)
	require.NotNil(t, out[0].DistanceMeters)
	assert.Equal(t, 120.5, *out[0].DistanceMeters)
}

func TestClient_NonJSONErrorUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil, nil)
	_, err := c.NearbyPickRequests(context.Background(), 0, 0, 100)
	require.Error(t, err)
	assert.Equal(t, "Failed to get nearby pick requests", err.Error())
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
}

func TestClient_ErrorFieldIsAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad things"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil, nil)
	_, err := c.SendPick(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, "bad things", err.Error())
}

func TestClient_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil, nil)
	_, err := c.MyPickRequests(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "malformed response")
	assert.NotNil(t, apiErr.Err)
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, nil, nil, nil)
	_, err := c.MyPickRequests(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "network error")
}

func TestClient_PickLifecycle(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()

	requester := newAuthedClient(t, srv, "req@example.com")
	srv.AddUser("picker@example.com", "secret", "Bob")
	picker := NewClient(srv.URL, srv.Client(), staticToken(srv.TokenFor("picker@example.com")), nil)
	ctx := context.Background()

	subject := "Coffee at the corner"
	pr, err := requester.CreatePickRequest(ctx, models.CreatePickRequest{
		ActivityType:    models.ActivityCoffee,
		Subject:         &subject,
		DurationMinutes: 60,
		Latitude:        45.5088,
		Longitude:       -73.5878,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PickStatusActive, pr.Status)

	nearby, err := picker.NearbyPickRequests(ctx, 45.5, -73.58, 5000)
	require.NoError(t, err)
	require.Len(t, nearby, 1)

	match, err := picker.SendPick(ctx, pr.PickRequestID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusPending, match.Status)
	assert.Equal(t, "Bob", match.PickerName)

	_, err = picker.SendPick(ctx, pr.PickRequestID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, StatusCode(err))

	accepted, err := requester.RespondToMatch(ctx, match.MatchID, true)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusAccepted, accepted.Status)
	assert.NotNil(t, accepted.ApprovedAt)

	matches, err := picker.MyMatches(ctx)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.False(t, matches[0].Derived)
}

func TestClient_CancelPickRequest(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	c := newAuthedClient(t, srv, "alice@example.com")
	ctx := context.Background()

	pr, err := c.CreatePickRequest(ctx, models.CreatePickRequest{
		ActivityType: models.ActivityWalk, DurationMinutes: 30, Latitude: 1, Longitude: 1,
	})
	require.NoError(t, err)

	require.NoError(t, c.CancelPickRequest(ctx, pr.PickRequestID))

	mine, err := c.MyPickRequests(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.PickStatusCancelled, mine[0].Status)

	err = c.CancelPickRequest(ctx, pr.PickRequestID)
	assert.Equal(t, http.StatusConflict, StatusCode(err))
}

func TestClient_MyMatches_FallbackOn404(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.DisableMatchesEndpoint = true

	ownerID := srv.AddUser("alice@example.com", "secret", "Alice")
	c := NewClient(srv.URL, srv.Client(), staticToken(srv.TokenFor("alice@example.com")), nil)

	matchedID := srv.AddPickRequest(models.PickRequest{
		UserID: ownerID, UserName: "Alice", Status: models.PickStatusMatched,
		Latitude: f(1), Longitude: f(1), CreatedAt: "2024-01-15T10:30:00",
	})
	srv.AddPickRequest(models.PickRequest{
		UserID: ownerID, UserName: "Alice", Status: models.PickStatusActive, Latitude: f(1), Longitude: f(1),
	})

	matches, err := c.MyMatches(context.Background())
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, matchedID, m.PickRequestID)
	assert.Equal(t, UnknownPicker, m.PickerName)
	assert.Equal(t, int64(0), m.PickerID)
	assert.Equal(t, ownerID, m.RequesterID)
	assert.Equal(t, "Alice", m.RequesterName)
	assert.True(t, m.Derived)

	assert.Equal(t, 1, srv.Calls("GET /api/matches/my"))
	assert.Equal(t, 1, srv.Calls("GET /api/pick-requests/my"))
}

func TestClient_MyMatches_OtherErrorsDoNotFallBack(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	c := newAuthedClient(t, srv, "alice@example.com")

	srv.Override("GET /api/matches/my", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.MyMatches(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Equal(t, 0, srv.Calls("GET /api/pick-requests/my"))
}

func TestDeriveMatches_EmptyNotNil(t *testing.T) {
	out := DeriveMatches(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
