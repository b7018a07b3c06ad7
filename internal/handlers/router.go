package handlers

import (
	_ "embed"
	"net/http"

	"pickme-client/internal/metrics"
	"pickme-client/internal/middleware"
	"pickme-client/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

//go:embed static/index.html
var indexHTML []byte

// NewViewerRouter builds the local map viewer. gatherer may be nil to skip /metrics.
func NewViewerRouter(hub *services.WSHub, focus Focuser, token string, gatherer prometheus.Gatherer) http.Handler {
	mapHandler := NewMapHandler(hub)
	wsHandler := NewWebSocketHandler(hub, focus)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.ViewerAuth(token))

		r.Get("/", serveIndex)
		r.Route("/api", func(r chi.Router) {
			r.Get("/markers", mapHandler.GetMarkers)
			r.Get("/region", mapHandler.GetRegion)
			r.Get("/tracking", mapHandler.GetTracking)
		})
		r.Get("/ws", wsHandler.HandleWebSocket)
		if gatherer != nil {
			r.Handle("/metrics", metrics.Handler(gatherer))
		}
	})

	return r
}

func serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}
