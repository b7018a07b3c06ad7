package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ViewerAuth guards the map viewer with a static bearer token. Browsers cannot
// set headers on websocket upgrades, so the token is also accepted as the
// token query parameter. An empty token leaves the viewer open.
func ViewerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided, err := viewerToken(r)
			if err != "" {
				respondError(w, err, http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func viewerToken(r *http.Request) (string, string) {
	if q := r.URL.Query().Get("token"); q != "" {
		return q, ""
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "Authorization header required"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "Invalid authorization header format"
	}
	return parts[1], ""
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
