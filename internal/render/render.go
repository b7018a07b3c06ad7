// Package render is the map display capability. The nearby poller and the
// live tracker push state into a Renderer; the console and the web viewer
// hub are the two implementations, picked at startup.
package render

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"pickme-client/internal/geo"
	"pickme-client/internal/models"
)

// Tracking is one recomputation of the live tracker
type Tracking struct {
	Position    models.Coordinate `json:"position"`
	Destination models.Coordinate `json:"destination"`
	Region      models.Region     `json:"region"`
	DistanceKm  float64           `json:"distanceKm"`
}

// Renderer displays map state. Implementations must be safe for concurrent use.
type Renderer interface {
	ShowMarkers(requests []models.PickRequest)
	ShowRegion(region models.Region)
	ShowTracking(update Tracking)
	ShowError(err error)
}

// Console prints map state as text
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a renderer writing to out
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) ShowMarkers(requests []models.PickRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(requests) == 0 {
		fmt.Fprintln(c.out, "No pick requests nearby")
		return
	}

	fmt.Fprintf(c.out, "%d pick request(s) nearby\n", len(requests))
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTIVITY\tUSER\tDURATION\tLOCATION\tDISTANCE")
	for _, r := range requests {
		pos, ok := r.Coordinate()
		if !ok {
			continue
		}
		distance := "-"
		if r.DistanceMeters != nil {
			distance = fmt.Sprintf("%.1f km", geo.RoundKm(*r.DistanceMeters/1000))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d min\t%.5f, %.5f\t%s\n",
			r.PickRequestID, Label(r), r.UserName, r.DurationMinutes, pos.Latitude, pos.Longitude, distance)
	}
	tw.Flush()
}

func (c *Console) ShowRegion(region models.Region) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "Map centered on %.5f, %.5f (span %.3f x %.3f)\n",
		region.Center.Latitude, region.Center.Longitude, region.LatitudeDelta, region.LongitudeDelta)
}

func (c *Console) ShowTracking(update Tracking) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "You are at %.5f, %.5f, %.1f km from destination\n",
		update.Position.Latitude, update.Position.Longitude, update.DistanceKm)
}

func (c *Console) ShowError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "Error: %v\n", err)
}

// Label is the display name of a pick request: its subject when set, else the activity type
func Label(r models.PickRequest) string {
	if r.Subject != nil && *r.Subject != "" {
		return *r.Subject
	}
	return string(r.ActivityType)
}

// Multi fans out to several renderers
type Multi []Renderer

func (m Multi) ShowMarkers(requests []models.PickRequest) {
	for _, r := range m {
		r.ShowMarkers(requests)
	}
}

func (m Multi) ShowRegion(region models.Region) {
	for _, r := range m {
		r.ShowRegion(region)
	}
}

func (m Multi) ShowTracking(update Tracking) {
	for _, r := range m {
		r.ShowTracking(update)
	}
}

func (m Multi) ShowError(err error) {
	for _, r := range m {
		r.ShowError(err)
	}
}
