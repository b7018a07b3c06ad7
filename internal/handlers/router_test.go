package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pickme-client/internal/metrics"
	"pickme-client/internal/models"
	"pickme-client/internal/render"
	"pickme-client/internal/services"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFocus struct{ n atomic.Int32 }

func (c *countingFocus) Focus(context.Context) { c.n.Add(1) }

func ptr[T any](v T) *T { return &v }

func newViewer(t *testing.T, token string) (*httptest.Server, *services.WSHub, *countingFocus) {
	t.Helper()
	hub := services.NewWSHub()
	focus := &countingFocus{}
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).RecordNearbyFetch(metrics.OutcomeSuccess)

	srv := httptest.NewServer(NewViewerRouter(hub, focus, token, reg))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub, focus
}

func TestMarkersAndRegion(t *testing.T) {
	srv, hub, _ := newViewer(t, "")

	resp, err := http.Get(srv.URL + "/api/region")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	hub.ShowMarkers([]models.PickRequest{{
		PickRequestID: 3, UserName: "Bob", ActivityType: models.ActivityCoffee,
		Latitude: ptr(50.85), Longitude: ptr(4.35),
	}})
	hub.ShowRegion(models.Region{Center: models.Coordinate{Latitude: 50.85, Longitude: 4.35}, LatitudeDelta: 0.05, LongitudeDelta: 0.05})

	resp, err = http.Get(srv.URL + "/api/markers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fc render.FeatureCollection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, [2]float64{4.35, 50.85}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "COFFEE", fc.Features[0].Properties["label"])

	resp2, err := http.Get(srv.URL + "/api/region")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var region models.Region
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&region))
	assert.Equal(t, 0.05, region.LatitudeDelta)
}

func TestViewerAuth(t *testing.T) {
	srv, _, _ := newViewer(t, "s3cret")

	resp, err := http.Get(srv.URL + "/api/markers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/markers", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics?token=s3cret")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIndexAndMetrics(t *testing.T) {
	srv, _, _ := newViewer(t, "")

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `pickme_nearby_fetches_total{outcome="success"} 1`)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) services.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg services.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_SnapshotFocusAndBroadcast(t *testing.T) {
	srv, hub, focus := newViewer(t, "")
	hub.ShowRegion(models.Region{LatitudeDelta: 0.01, LongitudeDelta: 0.01})

	conn := dial(t, srv)

	assert.Equal(t, services.MessageMarkers, readMessage(t, conn).Type)
	assert.Equal(t, services.MessageRegion, readMessage(t, conn).Type)
	require.Eventually(t, func() bool { return focus.n.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.Connections())

	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: services.MessageFocus}))
	require.Eventually(t, func() bool { return focus.n.Load() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	msg := readMessage(t, conn)
	assert.Equal(t, services.MessageError, msg.Type)
	assert.Equal(t, "Invalid message format", msg.Message)

	hub.ShowTracking(render.Tracking{DistanceKm: 1.5})
	msg = readMessage(t, conn)
	assert.Equal(t, services.MessageTracking, msg.Type)
	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1.5, data["distanceKm"])

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocket_FocusIsRateLimited(t *testing.T) {
	srv, _, focus := newViewer(t, "")
	conn := dial(t, srv)
	readMessage(t, conn) // markers snapshot

	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteJSON(services.WSMessage{Type: services.MessageFocus}))
	}

	msg := readMessage(t, conn)
	assert.Equal(t, services.MessageError, msg.Type)
	assert.Equal(t, "Too many focus requests", msg.Message)
	// one connect focus plus the burst
	assert.LessOrEqual(t, focus.n.Load(), int32(4))
}
