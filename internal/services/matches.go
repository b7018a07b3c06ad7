package services

import (
	"context"
	"errors"
	"fmt"

	"pickme-client/internal/geo"
	"pickme-client/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrPickRequestNotFound = errors.New("could not find pick request details for tracking")
	ErrUnknownMatch        = errors.New("match has no id and cannot be answered")
)

// MatchAPI is the backend surface the match book uses
type MatchAPI interface {
	SendPick(ctx context.Context, pickRequestID int64) (*models.Match, error)
	RespondToMatch(ctx context.Context, matchID int64, approved bool) (*models.Match, error)
	MyMatches(ctx context.Context) ([]models.Match, error)
	MyPickRequests(ctx context.Context) ([]models.PickRequest, error)
	CancelPickRequest(ctx context.Context, pickRequestID int64) error
}

// Invalidator drops a pick request from a local cache after a confirmed write
type Invalidator interface {
	Invalidate(pickRequestID int64)
}

// Profile is the user's matches and own pick requests
type Profile struct {
	Pending      []models.Match
	Accepted     []models.Match
	Other        []models.Match
	PickRequests []models.PickRequest
}

// MatchBook runs the pick and match lifecycle on behalf of the session user
type MatchBook struct {
	auth  AuthChecker
	api   MatchAPI
	cache Invalidator
}

// NewMatchBook creates a match book; cache may be nil
func NewMatchBook(auth AuthChecker, api MatchAPI, cache Invalidator) *MatchBook {
	return &MatchBook{
		auth:  auth,
		api:   api,
		cache: cache,
	}
}

// SendPick picks a pick request. It fails with ErrAuthRequired before any network call.
func (b *MatchBook) SendPick(ctx context.Context, pickRequestID int64) (*models.Match, error) {
	if err := b.auth.RequireAuth(); err != nil {
		return nil, err
	}

	m, err := b.api.SendPick(ctx, pickRequestID)
	if err != nil {
		return nil, err
	}
	if b.cache != nil {
		b.cache.Invalidate(pickRequestID)
	}

	log.Info().
		Int64("pick_request_id", pickRequestID).
		Int64("match_id", m.MatchID).
		Msg("Pick sent")
	return m, nil
}

// Respond approves or declines a pending match on one of the user's pick requests
func (b *MatchBook) Respond(ctx context.Context, matchID int64, approved bool) (*models.Match, error) {
	if err := b.auth.RequireAuth(); err != nil {
		return nil, err
	}
	if matchID <= 0 {
		return nil, ErrUnknownMatch
	}

	m, err := b.api.RespondToMatch(ctx, matchID, approved)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("match_id", matchID).
		Bool("approved", approved).
		Str("status", string(m.Status)).
		Msg("Responded to match")
	return m, nil
}

// Cancel withdraws one of the user's active pick requests
func (b *MatchBook) Cancel(ctx context.Context, pickRequestID int64) error {
	if err := b.auth.RequireAuth(); err != nil {
		return err
	}
	if err := b.api.CancelPickRequest(ctx, pickRequestID); err != nil {
		return err
	}
	if b.cache != nil {
		b.cache.Invalidate(pickRequestID)
	}
	log.Info().Int64("pick_request_id", pickRequestID).Msg("Pick request cancelled")
	return nil
}

// MyPickRequests lists the user's own pick requests
func (b *MatchBook) MyPickRequests(ctx context.Context) ([]models.PickRequest, error) {
	if err := b.auth.RequireAuth(); err != nil {
		return nil, err
	}
	return b.api.MyPickRequests(ctx)
}

// Profile loads matches and pick requests together. A section that fails to
// load is logged and left empty.
func (b *MatchBook) Profile(ctx context.Context) (*Profile, error) {
	if err := b.auth.RequireAuth(); err != nil {
		return nil, err
	}

	var (
		matches  []models.Match
		requests []models.PickRequest
	)

	var g errgroup.Group
	g.Go(func() error {
		m, err := b.api.MyMatches(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load matches")
			return nil
		}
		matches = m
		return nil
	})
	g.Go(func() error {
		r, err := b.api.MyPickRequests(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load pick requests")
			return nil
		}
		requests = r
		return nil
	})
	_ = g.Wait()

	p := PartitionMatches(matches)
	p.PickRequests = requests
	if p.PickRequests == nil {
		p.PickRequests = []models.PickRequest{}
	}
	return p, nil
}

// PartitionMatches splits matches by status, preserving order
func PartitionMatches(matches []models.Match) *Profile {
	p := &Profile{
		Pending:  []models.Match{},
		Accepted: []models.Match{},
		Other:    []models.Match{},
	}
	for _, m := range matches {
		switch m.Status {
		case models.MatchStatusPending:
			p.Pending = append(p.Pending, m)
		case models.MatchStatusAccepted:
			p.Accepted = append(p.Accepted, m)
		default:
			p.Other = append(p.Other, m)
		}
	}
	return p
}

// Destination resolves where to go for a match: the coordinates of its pick
// request, looked up among the user's pick requests
func (b *MatchBook) Destination(ctx context.Context, m models.Match) (models.Coordinate, error) {
	if err := b.auth.RequireAuth(); err != nil {
		return models.Coordinate{}, err
	}

	requests, err := b.api.MyPickRequests(ctx)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("failed to load tracking details: %w", err)
	}
	for _, pr := range requests {
		if pr.PickRequestID != m.PickRequestID {
			continue
		}
		c, ok := pr.Coordinate()
		if !ok || !geo.ValidCoordinate(c.Latitude, c.Longitude) {
			return models.Coordinate{}, ErrInvalidDestination
		}
		return c, nil
	}
	return models.Coordinate{}, ErrPickRequestNotFound
}

// FindMatch returns the user's match with the given id
func (b *MatchBook) FindMatch(ctx context.Context, matchID int64) (models.Match, error) {
	if err := b.auth.RequireAuth(); err != nil {
		return models.Match{}, err
	}
	matches, err := b.api.MyMatches(ctx)
	if err != nil {
		return models.Match{}, err
	}
	for _, m := range matches {
		if m.MatchID == matchID {
			return m, nil
		}
	}
	return models.Match{}, fmt.Errorf("match %d not found", matchID)
}
