// Package metrics exposes Prometheus metrics for the client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is implemented by anything that records client metrics
type Recorder interface {
	RecordAPICall(op string, statusCode int, duration time.Duration)
	RecordNearbyFetch(outcome string)
	RecordTrackingUpdate(distanceKm float64)
}

// Nearby fetch outcomes
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeDropped = "dropped"
)

// Collector records metrics into a Prometheus registry
type Collector struct {
	apiCalls        *prometheus.CounterVec
	apiLatency      *prometheus.HistogramVec
	nearbyFetches   *prometheus.CounterVec
	trackingUpdates prometheus.Counter
	trackingDist    prometheus.Gauge
}

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pickme_api_calls_total",
			Help: "Backend API calls by operation and HTTP status (0 for network errors)",
		}, []string{"op", "status_code"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pickme_api_call_duration_seconds",
			Help:    "Backend API call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		nearbyFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pickme_nearby_fetches_total",
			Help: "Nearby pick request fetches by outcome",
		}, []string{"outcome"}),
		trackingUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pickme_tracking_updates_total",
			Help: "Location updates processed while tracking",
		}),
		trackingDist: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pickme_tracking_distance_km",
			Help: "Last computed distance to the tracking destination",
		}),
	}

	reg.MustRegister(
		c.apiCalls,
		c.apiLatency,
		c.nearbyFetches,
		c.trackingUpdates,
		c.trackingDist,
	)

	return c
}

// RecordAPICall records one backend call
func (c *Collector) RecordAPICall(op string, statusCode int, duration time.Duration) {
	c.apiCalls.WithLabelValues(op, strconv.Itoa(statusCode)).Inc()
	c.apiLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordNearbyFetch records the outcome of a nearby fetch trigger
func (c *Collector) RecordNearbyFetch(outcome string) {
	c.nearbyFetches.WithLabelValues(outcome).Inc()
}

// RecordTrackingUpdate records a tracker recomputation
func (c *Collector) RecordTrackingUpdate(distanceKm float64) {
	c.trackingUpdates.Inc()
	c.trackingDist.Set(distanceKm)
}

// Handler returns the HTTP handler serving metrics from gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop discards everything
type Noop struct{}

func (Noop) RecordAPICall(string, int, time.Duration) {}
func (Noop) RecordNearbyFetch(string)                 {}
func (Noop) RecordTrackingUpdate(float64)             {}
