package apitest

import (
	"context"
	"encoding/json"
	"net/http"
)

// ErrorResponse mirrors the backend's error body
type ErrorResponse struct {
	Message string `json:"message"`
}

func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Message: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func withUser(ctx context.Context, u *user) context.Context {
	return context.WithValue(ctx, userIDKey, u)
}

func userFrom(r *http.Request) *user {
	u, _ := r.Context().Value(userIDKey).(*user)
	return u
}
