package services

import (
	"context"
	"testing"

	"pickme-client/internal/api/apitest"
	"pickme-client/internal/location"
	"pickme-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// authState is an AuthChecker with a fixed answer
type authState struct{ err error }

func (a authState) RequireAuth() error { return a.err }

func TestActivityTypeFor(t *testing.T) {
	cases := map[string]models.ActivityType{
		"Coffee":     models.ActivityCoffee,
		"Lunch":      models.ActivityFood,
		"Dinner":     models.ActivityFood,
		"Drinks":     models.ActivityFood,
		"Walk":       models.ActivityWalk,
		"Study":      models.ActivityStudy,
		"Work":       models.ActivityOther,
		"Shopping":   models.ActivityOther,
		"Gym":        models.ActivityGym,
		"Other":      models.ActivityOther,
		"Board game": models.ActivityOther,
	}
	for label, want := range cases {
		assert.Equal(t, want, ActivityTypeFor(label), label)
	}
	for _, label := range ActivityLabels {
		assert.Contains(t, activityTypes, label)
	}
}

func TestActivityWizard_Submit(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	client, userID := authedClient(t, srv, "alice@example.com")

	w := NewActivityWizard(authState{}, location.NewStatic(here), client)
	created, err := w.Submit(context.Background(), ActivityDraft{Label: " Drinks ", DurationMinutes: 120})
	require.NoError(t, err)

	assert.Equal(t, userID, created.UserID)
	assert.Equal(t, models.ActivityFood, created.ActivityType)
	require.NotNil(t, created.Subject)
	assert.Equal(t, "Drinks", *created.Subject)
	assert.Equal(t, 120, created.DurationMinutes)
	c, ok := created.Coordinate()
	require.True(t, ok)
	assert.Equal(t, here, c)
}

func TestActivityWizard_Checks(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	client, _ := authedClient(t, srv, "alice@example.com")
	ctx := context.Background()

	anon := NewActivityWizard(authState{err: ErrAuthRequired}, location.NewStatic(here), client)
	_, err := anon.Submit(ctx, ActivityDraft{Label: "Coffee", DurationMinutes: 30})
	assert.ErrorIs(t, err, ErrAuthRequired)

	provider := location.NewStatic(here)
	w := NewActivityWizard(authState{}, provider, client)

	_, err = w.Submit(ctx, ActivityDraft{Label: "  ", DurationMinutes: 30})
	assert.ErrorIs(t, err, ErrActivityRequired)

	_, err = w.Submit(ctx, ActivityDraft{Label: "Coffee", DurationMinutes: 0})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	provider.SetPermission(false)
	_, err = w.Submit(ctx, ActivityDraft{Label: "Coffee", DurationMinutes: 30})
	assert.ErrorIs(t, err, location.ErrPermissionDenied)

	assert.Zero(t, srv.Calls("POST /api/pick-requests"))
}
