package handlers

import (
	"net/http"

	"pickme-client/internal/render"
	"pickme-client/internal/services"
)

// MapHandler serves the current map state as JSON
type MapHandler struct {
	hub *services.WSHub
}

// NewMapHandler creates a new map handler
func NewMapHandler(hub *services.WSHub) *MapHandler {
	return &MapHandler{hub: hub}
}

// GetMarkers returns the nearby pick requests as a GeoJSON feature collection
func (h *MapHandler) GetMarkers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, render.Features(h.hub.Markers()))
}

// GetRegion returns the current map region
func (h *MapHandler) GetRegion(w http.ResponseWriter, r *http.Request) {
	region, ok := h.hub.Region()
	if !ok {
		respondError(w, "Region not known yet", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, region)
}

// GetTracking returns the last tracking update
func (h *MapHandler) GetTracking(w http.ResponseWriter, r *http.Request) {
	update, ok := h.hub.Tracking()
	if !ok {
		respondError(w, "Not tracking", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, update)
}
