// Package apitest provides an in-memory pick-me backend for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"pickme-client/internal/geo"
	"pickme-client/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

const jwtSecret = "apitest-secret"

type contextKey string

const userIDKey contextKey = "user_id"

type user struct {
	ID       int64
	Email    string
	Password string
	Name     string
}

// Server is a fake backend implementing the REST surface the client consumes
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	users        map[string]*user
	pickRequests []*models.PickRequest
	matches      []*models.Match
	nextID       int64
	calls        map[string]int
	overrides    map[string]http.HandlerFunc

	// NearbyGate, when set, blocks nearby responses until it yields or closes.
	NearbyGate chan struct{}
	// DisableMatchesEndpoint makes GET /api/matches/my answer 404.
	DisableMatchesEndpoint bool
	// TokenTTL is the lifetime of issued tokens; defaults to one hour.
	TokenTTL time.Duration
}

// NewServer starts a fake backend. Close it when done.
func NewServer() *Server {
	s := &Server{
		users:     make(map[string]*user),
		calls:     make(map[string]int),
		overrides: make(map[string]http.HandlerFunc),
		TokenTTL:  time.Hour,
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.login)
		r.Post("/auth/register", s.register)

		r.Group(func(r chi.Router) {
			r.Use(s.auth)
			r.Get("/users/me", s.me)
			r.Get("/pick-requests/nearby", s.nearby)
			r.Post("/pick-requests", s.createPickRequest)
			r.Get("/pick-requests/my", s.myPickRequests)
			r.Delete("/pick-requests/{id}", s.cancelPickRequest)
			r.Post("/matches", s.createMatch)
			r.Put("/matches/{id}/respond", s.respond)
			r.Get("/matches/my", s.myMatches)
		})
	})
	return r
}

// Calls returns how many requests hit method+path, e.g. "GET /api/pick-requests/nearby"
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Override replaces the handler for method+path
func (s *Server) Override(route string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[route] = h
}

// AddUser registers a user directly and returns its id
func (s *Server) AddUser(email, password, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.users[email] = &user{ID: s.nextID, Email: email, Password: password, Name: name}
	return s.nextID
}

// TokenFor issues a valid token for a registered user
func (s *Server) TokenFor(email string) string {
	s.mu.Lock()
	u := s.users[email]
	s.mu.Unlock()
	if u == nil {
		return ""
	}
	token, _ := s.issueToken(u)
	return token
}

// AddPickRequest stores pr as-is (after assigning an id) and returns the id
func (s *Server) AddPickRequest(pr models.PickRequest) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	pr.PickRequestID = s.nextID
	if pr.Status == "" {
		pr.Status = models.PickStatusActive
	}
	s.pickRequests = append(s.pickRequests, &pr)
	return pr.PickRequestID
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.calls[route]++
		override := s.overrides[route]
		s.mu.Unlock()

		if override != nil {
			override(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) issueToken(u *user) (string, error) {
	claims := jwt.MapClaims{
		"sub":     u.Email,
		"user_id": u.ID,
		"exp":     time.Now().Add(s.TokenTTL).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

func (s *Server) validateToken(tokenString string) (*user, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	email, err := token.Claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("subject not found in token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	return u, nil
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.Header.Get("Authorization"), " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		u, err := s.validateToken(parts[1])
		if err != nil {
			respondError(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.Email]
	s.mu.Unlock()
	if !ok || u.Password != req.Password {
		respondError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	s.respondAuth(w, u)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		respondError(w, "email, password and name are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if _, exists := s.users[req.Email]; exists {
		s.mu.Unlock()
		respondError(w, "Email already registered", http.StatusConflict)
		return
	}
	s.nextID++
	u := &user{ID: s.nextID, Email: req.Email, Password: req.Password, Name: req.Name}
	s.users[req.Email] = u
	s.mu.Unlock()

	s.respondAuth(w, u)
}

func (s *Server) respondAuth(w http.ResponseWriter, u *user) {
	token, err := s.issueToken(u)
	if err != nil {
		respondError(w, "failed to sign token", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, models.AuthResponse{
		Token:  token,
		Type:   "Bearer",
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	respondJSON(w, http.StatusOK, models.UserProfile{Email: u.Email, Message: "Authenticated successfully"})
}

func (s *Server) nearby(w http.ResponseWriter, r *http.Request) {
	if gate := s.NearbyGate; gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("latitude"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("longitude"), 64)
	if errLat != nil || errLng != nil {
		respondError(w, "latitude and longitude are required", http.StatusBadRequest)
		return
	}
	radius := 50000.0
	if v := q.Get("radiusMeters"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			radius = parsed
		}
	}

	u := userFrom(r)
	origin := models.Coordinate{Latitude: lat, Longitude: lng}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PickRequest, 0)
	for _, pr := range s.pickRequests {
		if pr.Status != models.PickStatusActive || pr.UserID == u.ID {
			continue
		}
		c, ok := pr.Coordinate()
		if ok && geo.ValidCoordinate(c.Latitude, c.Longitude) {
			meters := geo.HaversineKm(origin, c) * 1000
			if meters > radius {
				continue
			}
			cp := *pr
			cp.DistanceMeters = &meters
			out = append(out, cp)
			continue
		}
		// broken rows are passed through untouched
		out = append(out, *pr)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) createPickRequest(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.DurationMinutes <= 0 {
		respondError(w, "Duration must be positive", http.StatusBadRequest)
		return
	}
	if req.ActivityType == "" {
		respondError(w, "Activity type is required (e.g., COFFEE, FOOD, WALK)", http.StatusBadRequest)
		return
	}

	u := userFrom(r)
	now := time.Now()
	lat, lng := req.Latitude, req.Longitude
	expires := now.Add(time.Duration(req.DurationMinutes) * time.Minute).Format("2006-01-02T15:04:05")

	s.mu.Lock()
	s.nextID++
	pr := &models.PickRequest{
		PickRequestID:   s.nextID,
		UserID:          u.ID,
		UserName:        u.Name,
		ActivityType:    req.ActivityType,
		Subject:         req.Subject,
		DurationMinutes: req.DurationMinutes,
		Latitude:        &lat,
		Longitude:       &lng,
		Status:          models.PickStatusActive,
		CreatedAt:       now.Format("2006-01-02T15:04:05"),
		ExpiresAt:       &expires,
	}
	s.pickRequests = append(s.pickRequests, pr)
	out := *pr
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) myPickRequests(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PickRequest, 0)
	for _, pr := range s.pickRequests {
		if pr.UserID == u.ID {
			out = append(out, *pr)
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) cancelPickRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, "Invalid pick request id", http.StatusBadRequest)
		return
	}
	u := userFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	pr := s.findPickRequest(id)
	switch {
	case pr == nil:
		respondError(w, "Pick request not found", http.StatusNotFound)
	case pr.UserID != u.ID:
		respondError(w, "You can only cancel your own pick requests", http.StatusForbidden)
	case pr.Status != models.PickStatusActive:
		respondError(w, "Only active pick requests can be cancelled", http.StatusConflict)
	default:
		pr.Status = models.PickStatusCancelled
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) createMatch(w http.ResponseWriter, r *http.Request) {
	var req models.SendPickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	picker := userFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	pr := s.findPickRequest(req.PickRequestID)
	if pr == nil {
		respondError(w, "Pick request not found", http.StatusNotFound)
		return
	}
	if pr.Status != models.PickStatusActive {
		respondError(w, "Pick request is not active", http.StatusConflict)
		return
	}
	if pr.UserID == picker.ID {
		respondError(w, "Cannot pick your own request", http.StatusBadRequest)
		return
	}
	for _, m := range s.matches {
		if m.PickRequestID == pr.PickRequestID && m.PickerID == picker.ID {
			respondError(w, "You already sent a pick request for this", http.StatusConflict)
			return
		}
	}

	s.nextID++
	m := &models.Match{
		MatchID:       s.nextID,
		PickRequestID: pr.PickRequestID,
		PickerID:      picker.ID,
		PickerName:    picker.Name,
		RequesterID:   pr.UserID,
		RequesterName: pr.UserName,
		Status:        models.MatchStatusPending,
		CreatedAt:     time.Now().Format("2006-01-02T15:04:05"),
	}
	s.matches = append(s.matches, m)
	pr.Status = models.PickStatusMatched

	respondJSON(w, http.StatusOK, *m)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, "Invalid match id", http.StatusBadRequest)
		return
	}
	approved, err := strconv.ParseBool(r.URL.Query().Get("approved"))
	if err != nil {
		respondError(w, "approved is required", http.StatusBadRequest)
		return
	}
	requester := userFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	var m *models.Match
	for _, candidate := range s.matches {
		if candidate.MatchID == id {
			m = candidate
		}
	}
	if m == nil {
		respondError(w, "Match not found", http.StatusNotFound)
		return
	}
	if m.RequesterID != requester.ID {
		respondError(w, "Only the requester can respond to this match", http.StatusForbidden)
		return
	}
	if m.Status != models.MatchStatusPending {
		respondError(w, "Match is not pending", http.StatusConflict)
		return
	}

	if approved {
		m.Status = models.MatchStatusAccepted
		at := time.Now().Format("2006-01-02T15:04:05")
		m.ApprovedAt = &at
	} else {
		m.Status = models.MatchStatusDeclined
		if pr := s.findPickRequest(m.PickRequestID); pr != nil {
			pr.Status = models.PickStatusActive
		}
	}
	respondJSON(w, http.StatusOK, *m)
}

func (s *Server) myMatches(w http.ResponseWriter, r *http.Request) {
	if s.DisableMatchesEndpoint {
		respondError(w, "Not Found", http.StatusNotFound)
		return
	}
	u := userFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Match, 0)
	for _, m := range s.matches {
		if m.PickerID == u.ID || m.RequesterID == u.ID {
			out = append(out, *m)
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// findPickRequest requires s.mu
func (s *Server) findPickRequest(id int64) *models.PickRequest {
	for _, pr := range s.pickRequests {
		if pr.PickRequestID == id {
			return pr
		}
	}
	return nil
}
