// Package api is the HTTP client for the pick-me backend.
// Every operation issues exactly one request (MyMatches may issue a second
// on its fallback path) and normalizes all failures to *Error. No retries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pickme-client/internal/metrics"
	"pickme-client/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// UnknownPicker is the picker name used for matches derived from pick requests
const UnknownPicker = "Unknown"

// TokenSource supplies the bearer token for authenticated calls
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client calls the backend REST API
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	metrics    metrics.Recorder
}

// NewClient creates a new API client. tokens and rec may be nil.
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource, rec metrics.Recorder) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		metrics:    rec,
	}
}

type call struct {
	op       string
	method   string
	path     string
	query    url.Values
	body     any
	out      any
	fallback string
	// anonymous calls never carry a bearer token
	anonymous bool
}

// Login authenticates with email and password
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var out models.AuthResponse
	err := c.do(ctx, call{
		op:        "login",
		method:    http.MethodPost,
		path:      "/api/auth/login",
		body:      map[string]string{"email": email, "password": password},
		out:       &out,
		fallback:  "Login failed",
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and authenticates it
func (c *Client) Register(ctx context.Context, email, password, name string) (*models.AuthResponse, error) {
	var out models.AuthResponse
	err := c.do(ctx, call{
		op:        "register",
		method:    http.MethodPost,
		path:      "/api/auth/register",
		body:      map[string]string{"email": email, "password": password, "name": name},
		out:       &out,
		fallback:  "Registration failed",
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser handles GET /api/users/me
func (c *Client) CurrentUser(ctx context.Context) (*models.UserProfile, error) {
	var out models.UserProfile
	err := c.do(ctx, call{
		op:       "current_user",
		method:   http.MethodGet,
		path:     "/api/users/me",
		out:      &out,
		fallback: "Failed to get user profile",
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// NearbyPickRequests returns active pick requests within radiusMeters of the point
func (c *Client) NearbyPickRequests(ctx context.Context, latitude, longitude, radiusMeters float64) ([]models.PickRequest, error) {
	q := url.Values{}
	q.Set("latitude", formatFloat(latitude))
	q.Set("longitude", formatFloat(longitude))
	q.Set("radiusMeters", formatFloat(radiusMeters))

	var out []models.PickRequest
	err := c.do(ctx, call{
		op:       "nearby",
		method:   http.MethodGet,
		path:     "/api/pick-requests/nearby",
		query:    q,
		out:      &out,
		fallback: "Failed to get nearby pick requests",
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePickRequest publishes a new pick request
func (c *Client) CreatePickRequest(ctx context.Context, req models.CreatePickRequest) (*models.PickRequest, error) {
	var out models.PickRequest
	err := c.do(ctx, call{
		op:       "create_pick_request",
		method:   http.MethodPost,
		path:     "/api/pick-requests",
		body:     req,
		out:      &out,
		fallback: "Failed to create pick request",
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MyPickRequests returns the caller's own pick requests
func (c *Client) MyPickRequests(ctx context.Context) ([]models.PickRequest, error) {
	var out []models.PickRequest
	err := c.do(ctx, call{
		op:       "my_pick_requests",
		method:   http.MethodGet,
		path:     "/api/pick-requests/my",
		out:      &out,
		fallback: "Failed to get my pick requests",
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelPickRequest cancels one of the caller's ACTIVE pick requests
func (c *Client) CancelPickRequest(ctx context.Context, pickRequestID int64) error {
	return c.do(ctx, call{
		op:       "cancel_pick_request",
		method:   http.MethodDelete,
		path:     "/api/pick-requests/" + strconv.FormatInt(pickRequestID, 10),
		fallback: "Failed to cancel pick request",
	})
}

// SendPick creates a PENDING match against a pick request
func (c *Client) SendPick(ctx context.Context, pickRequestID int64) (*models.Match, error) {
	var out models.Match
	err := c.do(ctx, call{
		op:       "send_pick",
		method:   http.MethodPost,
		path:     "/api/matches",
		body:     models.SendPickRequest{PickRequestID: pickRequestID},
		out:      &out,
		fallback: "Failed to send pick request",
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RespondToMatch approves or declines a PENDING match
func (c *Client) RespondToMatch(ctx context.Context, matchID int64, approved bool) (*models.Match, error) {
	q := url.Values{}
	q.Set("approved", strconv.FormatBool(approved))

	var out models.Match
	err := c.do(ctx, call{
		op:       "respond_to_match",
		method:   http.MethodPut,
		path:     "/api/matches/" + strconv.FormatInt(matchID, 10) + "/respond",
		query:    q,
		out:      &out,
		fallback: "Failed to respond to match",
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MyMatches returns the caller's matches. If the backend has no /api/matches/my
// endpoint (404), matches are derived from the caller's MATCHED pick requests;
// those carry UnknownPicker and a zero picker and match id.
func (c *Client) MyMatches(ctx context.Context) ([]models.Match, error) {
	var out []models.Match
	err := c.do(ctx, call{
		op:       "my_matches",
		method:   http.MethodGet,
		path:     "/api/matches/my",
		out:      &out,
		fallback: "Failed to get my matches",
	})
	if err == nil {
		return out, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	log.Warn().Msg("Matches endpoint unavailable, deriving matches from pick requests")

	requests, err := c.MyPickRequests(ctx)
	if err != nil {
		return nil, err
	}
	return DeriveMatches(requests), nil
}

// DeriveMatches builds placeholder matches from MATCHED pick requests
func DeriveMatches(requests []models.PickRequest) []models.Match {
	matches := make([]models.Match, 0)
	for _, pr := range requests {
		if pr.Status != models.PickStatusMatched {
			continue
		}
		matches = append(matches, models.Match{
			PickRequestID: pr.PickRequestID,
			PickerName:    UnknownPicker,
			RequesterID:   pr.UserID,
			RequesterName: pr.UserName,
			Status:        models.MatchStatusPending,
			CreatedAt:     pr.CreatedAt,
			Derived:       true,
		})
	}
	return matches
}

func (c *Client) do(ctx context.Context, cl call) error {
	start := time.Now()
	status, err := c.roundTrip(ctx, cl)
	c.metrics.RecordAPICall(cl.op, status, time.Since(start))

	if err != nil {
		log.Error().
			Err(err).
			Str("op", cl.op).
			Int("status", status).
			Msg("API call failed")
		return err
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, cl call) (int, error) {
	reqURL := c.baseURL + cl.path
	if len(cl.query) > 0 {
		reqURL += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return 0, &Error{Op: cl.op, Message: cl.fallback, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, reqURL, body)
	if err != nil {
		return 0, &Error{Op: cl.op, Message: cl.fallback, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	if !cl.anonymous && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			// proceed unauthenticated, the backend decides
			log.Warn().Err(err).Str("op", cl.op).Msg("Failed to read auth token")
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &Error{
			Op:      cl.op,
			Message: fmt.Sprintf("%s: network error: %v", cl.fallback, err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &Error{
			Op:         cl.op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s: failed to read response", cl.fallback),
			Err:        err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &Error{
			Op:         cl.op,
			StatusCode: resp.StatusCode,
			Message:    serverMessage(data, cl.fallback),
		}
	}

	if cl.out == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, cl.out); err != nil {
		return resp.StatusCode, &Error{
			Op:         cl.op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s: malformed response", cl.fallback),
			Err:        err,
		}
	}
	return resp.StatusCode, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
