package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"pickme-client/internal/models"
	"pickme-client/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ErrAuthRequired is returned before any network call when an action needs a session
var ErrAuthRequired = errors.New("please login to continue")

// SessionState is the lifecycle state of the session store
type SessionState int

const (
	SessionLoading SessionState = iota
	SessionAuthenticated
	SessionAnonymous
)

func (s SessionState) String() string {
	switch s {
	case SessionLoading:
		return "loading"
	case SessionAuthenticated:
		return "authenticated"
	case SessionAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Authenticator performs the remote login and registration calls
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*models.AuthResponse, error)
	Register(ctx context.Context, email, password, name string) (*models.AuthResponse, error)
}

// SessionStore holds the device's single session and keeps it persisted
type SessionStore struct {
	mu      sync.RWMutex
	state   SessionState
	session *models.Session

	repo *repository.SessionRepository
	auth Authenticator
	now  func() time.Time
}

// NewSessionStore creates a store in the loading state; call Load next
func NewSessionStore(repo *repository.SessionRepository, auth Authenticator) *SessionStore {
	return &SessionStore{
		state: SessionLoading,
		repo:  repo,
		auth:  auth,
		now:   time.Now,
	}
}

// Load restores the persisted session. A missing, unreadable or expired session
// leaves the store anonymous.
func (s *SessionStore) Load(ctx context.Context) SessionState {
	session, err := s.repo.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		session = nil
	case err != nil:
		log.Error().Err(err).Msg("Failed to load session")
		if err := s.repo.Clear(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to clear unreadable session")
		}
		session = nil
	case tokenExpired(session.Token, s.now()):
		log.Info().Int64("user_id", session.UserID).Msg("Stored session expired")
		if err := s.repo.Clear(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to clear expired session")
		}
		session = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	if session != nil {
		s.state = SessionAuthenticated
	} else {
		s.state = SessionAnonymous
	}
	return s.state
}

// Login authenticates and persists the session. It reports success; failures are logged.
func (s *SessionStore) Login(ctx context.Context, email, password string) bool {
	resp, err := s.auth.Login(ctx, email, password)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("Login failed")
		return false
	}
	return s.establish(ctx, resp)
}

// Register creates an account, then behaves like Login
func (s *SessionStore) Register(ctx context.Context, email, password, name string) bool {
	resp, err := s.auth.Register(ctx, email, password, name)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("Registration failed")
		return false
	}
	return s.establish(ctx, resp)
}

func (s *SessionStore) establish(ctx context.Context, resp *models.AuthResponse) bool {
	if resp == nil || resp.Token == "" || resp.UserID == 0 {
		log.Error().Msg("Auth response is missing token or user id")
		return false
	}

	session := &models.Session{
		UserID: resp.UserID,
		Email:  resp.Email,
		Name:   resp.Name,
		Token:  resp.Token,
	}
	if err := s.repo.Save(ctx, session); err != nil {
		log.Error().Err(err).Int64("user_id", session.UserID).Msg("Failed to persist session")
		return false
	}

	s.mu.Lock()
	s.session = session
	s.state = SessionAuthenticated
	s.mu.Unlock()

	log.Info().Int64("user_id", session.UserID).Str("email", session.Email).Msg("Session established")
	return true
}

// Logout drops the session. It never fails: the store is anonymous afterwards
// even if clearing storage did not succeed.
func (s *SessionStore) Logout(ctx context.Context) {
	s.mu.Lock()
	s.session = nil
	s.state = SessionAnonymous
	s.mu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to clear stored session")
	}
}

// State returns the current lifecycle state
func (s *SessionStore) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated reports whether a session is active
func (s *SessionStore) IsAuthenticated() bool {
	return s.State() == SessionAuthenticated
}

// Current returns a copy of the active session
func (s *SessionStore) Current() (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return models.Session{}, false
	}
	return *s.session, true
}

// RequireAuth returns ErrAuthRequired when no session is active
func (s *SessionStore) RequireAuth() error {
	if !s.IsAuthenticated() {
		return ErrAuthRequired
	}
	return nil
}

// tokenExpired reports whether token is a JWT whose exp is in the past.
// Opaque tokens never expire client-side.
func tokenExpired(token string, now time.Time) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
