package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pickme-client/internal/models"
)

const (
	userKey  = "user"
	tokenKey = "token"
)

// storedUser is the persisted "user" value; the token lives under its own key
type storedUser struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// SessionRepository persists the device session as two keys, "user" and "token"
type SessionRepository struct {
	store KeyValueStore
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(store KeyValueStore) *SessionRepository {
	return &SessionRepository{store: store}
}

// Save writes the session
func (r *SessionRepository) Save(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(storedUser{UserID: s.UserID, Email: s.Email, Name: s.Name})
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := r.store.Set(ctx, userKey, string(data)); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	if err := r.store.Set(ctx, tokenKey, s.Token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Load reads the session; ErrNotFound when either key is missing
func (r *SessionRepository) Load(ctx context.Context) (*models.Session, error) {
	userData, err := r.store.Get(ctx, userKey)
	if err != nil {
		return nil, err
	}
	token, err := r.store.Get(ctx, tokenKey)
	if err != nil {
		return nil, err
	}
	if userData == "" || token == "" {
		return nil, ErrNotFound
	}

	var u storedUser
	if err := json.Unmarshal([]byte(userData), &u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	return &models.Session{
		UserID: u.UserID,
		Email:  u.Email,
		Name:   u.Name,
		Token:  token,
	}, nil
}

// Clear removes both keys. Both deletes are attempted even if the first fails.
func (r *SessionRepository) Clear(ctx context.Context) error {
	return errors.Join(
		r.store.Delete(ctx, userKey),
		r.store.Delete(ctx, tokenKey),
	)
}

// Token returns the persisted bearer token, or "" when logged out
func (r *SessionRepository) Token(ctx context.Context) (string, error) {
	token, err := r.store.Get(ctx, tokenKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return token, err
}
