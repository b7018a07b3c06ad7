package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pickme-client/internal/location"
	"pickme-client/internal/models"

	"github.com/rs/zerolog/log"
)

var (
	ErrActivityRequired = errors.New("choose an activity")
	ErrInvalidDuration  = errors.New("duration must be a positive number of minutes")
)

// DurationPresets are the durations offered by the activity wizard, in minutes
var DurationPresets = []int{15, 30, 45, 60, 120, 180, 240, 300, 360, 1440}

// ActivityLabels are the activities offered by the wizard, in display order
var ActivityLabels = []string{"Coffee", "Lunch", "Dinner", "Drinks", "Walk", "Study", "Work", "Shopping", "Gym", "Other"}

var activityTypes = map[string]models.ActivityType{
	"Coffee":   models.ActivityCoffee,
	"Lunch":    models.ActivityFood,
	"Dinner":   models.ActivityFood,
	"Drinks":   models.ActivityFood,
	"Walk":     models.ActivityWalk,
	"Study":    models.ActivityStudy,
	"Work":     models.ActivityOther,
	"Shopping": models.ActivityOther,
	"Gym":      models.ActivityGym,
	"Other":    models.ActivityOther,
}

// ActivityTypeFor maps a wizard label to the backend activity type; custom labels map to OTHER
func ActivityTypeFor(label string) models.ActivityType {
	if t, ok := activityTypes[label]; ok {
		return t
	}
	return models.ActivityOther
}

// AuthChecker reports whether an action may proceed
type AuthChecker interface {
	RequireAuth() error
}

// PickRequestCreator publishes pick requests
type PickRequestCreator interface {
	CreatePickRequest(ctx context.Context, req models.CreatePickRequest) (*models.PickRequest, error)
}

// ActivityDraft is what the user picked in the wizard
type ActivityDraft struct {
	Label           string
	DurationMinutes int
}

// ActivityWizard turns a draft into a pick request at the user's current position
type ActivityWizard struct {
	auth     AuthChecker
	location location.Provider
	creator  PickRequestCreator
}

// NewActivityWizard creates a wizard
func NewActivityWizard(auth AuthChecker, provider location.Provider, creator PickRequestCreator) *ActivityWizard {
	return &ActivityWizard{
		auth:     auth,
		location: provider,
		creator:  creator,
	}
}

// Submit validates the draft, takes a location fix and creates the pick request.
// Authentication is checked before anything else.
func (w *ActivityWizard) Submit(ctx context.Context, draft ActivityDraft) (*models.PickRequest, error) {
	if err := w.auth.RequireAuth(); err != nil {
		return nil, err
	}

	label := strings.TrimSpace(draft.Label)
	if label == "" {
		return nil, ErrActivityRequired
	}
	if draft.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	pos, err := location.Acquire(ctx, w.location)
	if err != nil {
		return nil, err
	}

	req := models.CreatePickRequest{
		ActivityType:    ActivityTypeFor(label),
		Subject:         &label,
		DurationMinutes: draft.DurationMinutes,
		Latitude:        pos.Latitude,
		Longitude:       pos.Longitude,
	}
	created, err := w.creator.CreatePickRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create pick request: %w", err)
	}

	log.Info().
		Int64("pick_request_id", created.PickRequestID).
		Str("activity_type", string(req.ActivityType)).
		Int("duration_minutes", req.DurationMinutes).
		Msg("Pick request created")
	return created, nil
}
