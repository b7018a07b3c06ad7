package location

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pickme-client/internal/geo"
	"pickme-client/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Feed is a Provider that reads position frames from a websocket endpoint,
// e.g. a GPS relay on the phone or a simulator. Each text frame is a JSON
// object with latitude, longitude and optional accuracy and timestamp.
type Feed struct {
	url    string
	dialer *websocket.Dialer
	now    func() time.Time
}

// NewFeed creates a feed provider for url
func NewFeed(url string) *Feed {
	return &Feed{
		url:    url,
		dialer: websocket.DefaultDialer,
		now:    time.Now,
	}
}

// RequestPermission always grants; the relay owns the permission prompt
func (f *Feed) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

// ServicesEnabled reports whether the feed endpoint accepts connections
func (f *Feed) ServicesEnabled(ctx context.Context) (bool, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		log.Warn().Err(err).Str("url", f.url).Msg("Location feed unreachable")
		return false, nil
	}
	conn.Close()
	return true, nil
}

// CurrentPosition waits for the first valid frame
func (f *Feed) CurrentPosition(ctx context.Context) (models.Position, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return models.Position{}, fmt.Errorf("failed to connect to location feed: %w", err)
	}
	defer conn.Close()

	stop := closeOnDone(ctx, conn)
	defer stop()

	for {
		pos, err := readPosition(conn)
		if err != nil {
			if ctx.Err() != nil {
				return models.Position{}, ctx.Err()
			}
			return models.Position{}, err
		}
		if geo.ValidCoordinate(pos.Latitude, pos.Longitude) {
			return pos, nil
		}
	}
}

// Watch streams frames that pass opts until the subscription is removed or the feed closes
func (f *Feed) Watch(ctx context.Context, opts WatchOptions) (Subscription, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to location feed: %w", err)
	}

	sub, ctx := newSubscription(ctx)
	stop := closeOnDone(ctx, conn)

	go func() {
		defer sub.finish()
		defer conn.Close()
		defer stop()
		sub.run(ctx, opts, func(ctx context.Context) (models.Position, error) {
			pos, err := readPosition(conn)
			if err != nil && ctx.Err() == nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("url", f.url).Msg("Location feed error")
				}
			}
			return pos, err
		}, f.now)
	}()

	return sub, nil
}

func readPosition(conn *websocket.Conn) (models.Position, error) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return models.Position{}, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var pos models.Position
		if err := json.Unmarshal(data, &pos); err != nil {
			log.Warn().Err(err).Msg("Ignoring malformed location frame")
			continue
		}
		return pos, nil
	}
}

// closeOnDone closes conn when ctx ends so blocked reads return
func closeOnDone(ctx context.Context, conn *websocket.Conn) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}
